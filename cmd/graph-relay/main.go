package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kal997/graph-notification-relay/internal/backoff"
	"github.com/kal997/graph-notification-relay/internal/broadcast"
	"github.com/kal997/graph-notification-relay/internal/config"
	"github.com/kal997/graph-notification-relay/internal/dispatch"
	"github.com/kal997/graph-notification-relay/internal/forward"
	"github.com/kal997/graph-notification-relay/internal/intake"
	audit "github.com/kal997/graph-notification-relay/internal/logger"
	"github.com/kal997/graph-notification-relay/internal/metrics"
	"github.com/kal997/graph-notification-relay/internal/relay"
	"github.com/kal997/graph-notification-relay/internal/storage"
	"github.com/kal997/graph-notification-relay/internal/subscription"
)

func main() {

	if value, ok := os.LookupEnv("ENV"); ok && value == "prod" {
		// In Docker/Compose, rely only on provided env vars
	} else {
		// Local dev: force load .env
		if err := godotenv.Overload(); err != nil {
			log.Fatalf("Could not load .env: %v", err)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Notification cache; pings Redis, worst case 5s before timeout
	store, err := storage.NewRedisStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	auditLog, err := audit.NewFileLogger(cfg.GetLogFile())
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	defer auditLog.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secrets, err := subscriptionSource(ctx, cfg, store, logger)
	if err != nil {
		log.Fatalf("Failed to load subscriptions: %v", err)
	}

	hub := broadcast.NewHub(logger.With("component", "broadcast"), cfg.GetAllowedOrigins()...)

	sinks := []dispatch.Sink{
		storage.NewCacheSink(store, backoff.Default()),
		audit.NewAuditSink(auditLog),
		hub,
	}
	if url := cfg.GetForwardURL(); url != "" {
		rps, burst := cfg.GetForwardRate()
		sinks = append(sinks, forward.NewSink(url, forward.Options{
			RequestsPerSecond: rps,
			Burst:             burst,
			Client:            &http.Client{Timeout: cfg.GetSinkTimeout()},
		}, logger.With("component", "forward")))
		logger.Info("forwarding notifications", "url", url, "rps", rps, "burst", burst)
	}

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	queue := dispatch.NewQueue(dispatch.Options{
		Capacity:    cfg.GetQueueCapacity(),
		Workers:     cfg.GetWorkerCount(),
		SinkTimeout: cfg.GetSinkTimeout(),
	}, logger.With("component", "dispatch"), collector, sinks...)
	queue.Start()

	in := intake.New(queue, secrets, collector, logger.With("component", "intake"))
	handler := relay.NewHandler(in, cfg.GetMaxBodyBytes(), logger.With("component", "relay"))

	server := &http.Server{
		Addr: cfg.GetRelayAddr(),
		Handler: relay.NewRouter(handler, relay.RouterOptions{
			Path:      cfg.GetRelayPath(),
			Health:    store,
			Gatherer:  registry,
			Broadcast: hub,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting graph notification relay",
		"addr", cfg.GetRelayAddr(),
		"path", cfg.GetRelayPath(),
		"redis", cfg.GetRedisAddr(),
		"workers", cfg.GetWorkerCount(),
		"queue_capacity", cfg.GetQueueCapacity())

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer shutdownCancel()

	// Stop intake first so nothing is enqueued behind the flush
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatch queue not fully flushed", "pending", queue.Len(), "error", err)
	}
	_ = hub.Close()

	logger.Info("shutdown complete")
}

// subscriptionSource layers the optional Redis-backed secrets over the
// static ones from the environment.
func subscriptionSource(ctx context.Context, cfg *config.Config, store *storage.RedisStorage, logger *slog.Logger) (subscription.Source, error) {
	static := subscription.NewStatic(cfg.GetClientStates(), cfg.GetClientState())

	key := cfg.GetSubscriptionKey()
	if key == "" {
		return static, nil
	}

	source := subscription.NewRedisSource(store.Client(), key, logger.With("component", "subscriptions"))
	if err := source.Load(ctx); err != nil {
		return nil, err
	}
	go source.Run(ctx, cfg.GetSubscriptionRefresh())

	return subscription.Chain{source, static}, nil
}
