package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all application configuration
// Fields are private to ensure immutability after creation
type Config struct {
	// Relay endpoint configuration
	relayPort    int
	relayPath    string
	maxBodyBytes int64

	// Subscription secrets
	clientState     string
	clientStates    map[string]string
	subscriptionKey string
	refreshInterval time.Duration

	// Redis configuration
	redisHost string
	redisPort int
	recordTTL time.Duration

	// Dispatch configuration
	queueCapacity   int
	workerCount     int
	sinkTimeout     time.Duration
	shutdownTimeout time.Duration

	// Forwarding sink
	forwardURL   string
	forwardRPS   float64
	forwardBurst int

	// Websocket broadcaster
	wsOrigins []string

	// Logging configuration
	logLevel LogLevel
	logFile  string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		relayPort:       4000,
		relayPath:       "/api/callback",
		maxBodyBytes:    1 << 20,
		refreshInterval: 60 * time.Second,
		redisPort:       6379, // Standard Redis port
		queueCapacity:   1024,
		workerCount:     4,
		sinkTimeout:     10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		forwardRPS:      10,
		forwardBurst:    20,
	}

	var err error

	// Relay endpoint
	if config.relayPort, err = intFromEnv("RELAY_PORT", config.relayPort); err != nil {
		return nil, err
	}
	if path := os.Getenv("RELAY_PATH"); path != "" {
		config.relayPath = path
	}
	maxBody, err := intFromEnv("MAX_BODY_BYTES", int(config.maxBodyBytes))
	if err != nil {
		return nil, err
	}
	config.maxBodyBytes = int64(maxBody)

	// Subscription secrets
	config.clientState = os.Getenv("CLIENT_STATE")
	if config.clientStates, err = parseClientStates(os.Getenv("CLIENT_STATES")); err != nil {
		return nil, fmt.Errorf("invalid CLIENT_STATES: %w", err)
	}
	config.subscriptionKey = os.Getenv("SUBSCRIPTION_KEY")
	refresh, err := intFromEnv("SUBSCRIPTION_REFRESH_SECONDS", int(config.refreshInterval/time.Second))
	if err != nil {
		return nil, err
	}
	config.refreshInterval = time.Duration(refresh) * time.Second

	// Redis configuration
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil, fmt.Errorf("REDIS_HOST environment variable is required")
	}
	config.redisHost = host

	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		config.redisPort = port
	}

	// TTL configuration
	ttlStr := os.Getenv("RECORD_TTL_HOURS")
	if ttlStr == "" {
		return nil, fmt.Errorf("RECORD_TTL_HOURS environment variable is required")
	}
	hours, err := strconv.Atoi(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RECORD_TTL_HOURS: %w", err)
	}
	config.recordTTL = time.Duration(hours) * time.Hour

	// Dispatch configuration
	if config.queueCapacity, err = intFromEnv("QUEUE_CAPACITY", config.queueCapacity); err != nil {
		return nil, err
	}
	if config.workerCount, err = intFromEnv("WORKER_COUNT", config.workerCount); err != nil {
		return nil, err
	}
	sinkTimeout, err := intFromEnv("SINK_TIMEOUT_SECONDS", int(config.sinkTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	config.sinkTimeout = time.Duration(sinkTimeout) * time.Second
	shutdownTimeout, err := intFromEnv("SHUTDOWN_TIMEOUT_SECONDS", int(config.shutdownTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	config.shutdownTimeout = time.Duration(shutdownTimeout) * time.Second

	// Forwarding sink
	config.forwardURL = os.Getenv("FORWARD_URL")
	if rps := os.Getenv("FORWARD_RPS"); rps != "" {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FORWARD_RPS: %w", err)
		}
		config.forwardRPS = v
	}
	if config.forwardBurst, err = intFromEnv("FORWARD_BURST", config.forwardBurst); err != nil {
		return nil, err
	}

	// Websocket broadcaster
	for _, origin := range strings.Split(os.Getenv("WS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			config.wsOrigins = append(config.wsOrigins, origin)
		}
	}

	// Logging configuration
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		return nil, fmt.Errorf("LOG_LEVEL environment variable is required")
	}
	logLevel := LogLevel(levelStr)
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %s (valid: debug, info, warn, error)", levelStr)
	}
	config.logLevel = logLevel

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		return nil, fmt.Errorf("LOG_FILE environment variable is required")
	}
	config.logFile = logFile

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.relayPort <= 0 || c.relayPort > 65535 {
		return fmt.Errorf("relay port out of range: %d", c.relayPort)
	}

	if !strings.HasPrefix(c.relayPath, "/") {
		return fmt.Errorf("relay path must start with '/': %s", c.relayPath)
	}

	if c.maxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be greater than 0")
	}

	if c.redisHost == "" {
		return fmt.Errorf("redis host cannot be empty")
	}

	if c.recordTTL <= 0 {
		return fmt.Errorf("record TTL must be greater than 0")
	}

	if c.queueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be greater than 0")
	}

	if c.workerCount <= 0 {
		return fmt.Errorf("worker count must be greater than 0")
	}

	if c.sinkTimeout <= 0 {
		return fmt.Errorf("sink timeout must be greater than 0")
	}

	if c.subscriptionKey != "" && c.refreshInterval <= 0 {
		return fmt.Errorf("subscription refresh interval must be greater than 0")
	}

	if c.forwardURL != "" {
		if !strings.HasPrefix(c.forwardURL, "http://") && !strings.HasPrefix(c.forwardURL, "https://") {
			return fmt.Errorf("forward URL must be http or https: %s", c.forwardURL)
		}
		if c.forwardRPS <= 0 || c.forwardBurst <= 0 {
			return fmt.Errorf("forward rate limit must be greater than 0")
		}
	}

	if !isValidLogLevel(c.logLevel) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.logLevel)
	}

	if c.logFile == "" {
		return fmt.Errorf("log file path cannot be empty")
	}

	return nil
}

// GetRelayAddr returns the HTTP listen address in :port format
func (c *Config) GetRelayAddr() string {
	return fmt.Sprintf(":%d", c.relayPort)
}

// GetRelayPath returns the notification endpoint path
func (c *Config) GetRelayPath() string {
	return c.relayPath
}

// GetMaxBodyBytes returns the maximum accepted request body size
func (c *Config) GetMaxBodyBytes() int64 {
	return c.maxBodyBytes
}

// GetClientState returns the clientState expected for subscriptions without an explicit entry
func (c *Config) GetClientState() string {
	return c.clientState
}

// GetClientStates returns a copy of the per-subscription clientState secrets
func (c *Config) GetClientStates() map[string]string {
	out := make(map[string]string, len(c.clientStates))
	for k, v := range c.clientStates {
		out[k] = v
	}
	return out
}

// GetSubscriptionKey returns the Redis hash holding subscription secrets, if any
func (c *Config) GetSubscriptionKey() string {
	return c.subscriptionKey
}

// GetSubscriptionRefresh returns how often the Redis subscription source reloads
func (c *Config) GetSubscriptionRefresh() time.Duration {
	return c.refreshInterval
}

// GetRedisAddr returns the Redis address in host:port format
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.redisHost, c.redisPort)
}

// GetRecordTTL returns the cached notification TTL
func (c *Config) GetRecordTTL() time.Duration {
	return c.recordTTL
}

func (c *Config) GetQueueCapacity() int {
	return c.queueCapacity
}

func (c *Config) GetWorkerCount() int {
	return c.workerCount
}

func (c *Config) GetSinkTimeout() time.Duration {
	return c.sinkTimeout
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return c.shutdownTimeout
}

// GetForwardURL returns the forwarding sink target; empty disables the sink
func (c *Config) GetForwardURL() string {
	return c.forwardURL
}

// GetForwardRate returns the forwarding sink rate limit
func (c *Config) GetForwardRate() (float64, int) {
	return c.forwardRPS, c.forwardBurst
}

// GetAllowedOrigins returns the origins allowed to open /ws; empty means same-origin only
func (c *Config) GetAllowedOrigins() []string {
	return append([]string(nil), c.wsOrigins...)
}

// GetLogLevel returns the configured log level
func (c *Config) GetLogLevel() LogLevel {
	return c.logLevel
}

// GetLogFile returns the log file path
func (c *Config) GetLogFile() string {
	return c.logFile
}

// IsDebugEnabled returns true if debug logging is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.logLevel == LogLevelDebug
}

// SlogLevel maps the configured level onto slog
func (c *Config) SlogLevel() slog.Level {
	switch c.logLevel {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper function to validate log levels
func isValidLogLevel(level LogLevel) bool {
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

func intFromEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// parseClientStates reads "sub1=secret1,sub2=secret2".
func parseClientStates(s string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed entry %q (want subscriptionId=secret)", pair)
		}
		out[id] = secret
	}
	return out, nil
}
