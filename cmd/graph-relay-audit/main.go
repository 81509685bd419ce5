package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kal997/graph-notification-relay/internal/config"
	"github.com/kal997/graph-notification-relay/internal/logger"
	"github.com/kal997/graph-notification-relay/internal/models"
	"github.com/kal997/graph-notification-relay/internal/notifier"
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
	// Load configuration into config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Initialize notifier, worst case 5s before timeout
	redis, err := notifier.NewRedisNotifier(cfg.GetRedisAddr())
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}
	defer redis.Close()

	// Managed Redis often forbids CONFIG SET; the server may already be configured
	if err := redis.EnableKeyspaceEvents(context.Background()); err != nil {
		slog.Warn("could not enable keyspace notifications", "error", err)
	}

	fileLogger, err := logger.NewFileLogger(cfg.GetLogFile())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer fileLogger.Close()

	slog.Info("starting graph-relay-audit",
		"redis", cfg.GetRedisAddr(),
		"log_file", cfg.GetLogFile())

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, stopping")
		cancel()
	}()

	slog.Info("listening for notification cache events")

	err = notifier.Drain(ctx, redis, []string{models.CacheKeyPrefix + "*"}, func(event notifier.CacheEvent) {
		message := fmt.Sprintf("cache %s resource=%s key=%s", event.Operation, event.Resource, event.Key)
		if err := fileLogger.Log(ctx, message); err != nil {
			slog.Error("failed to log cache event", "key", event.Key, "error", err)
			return
		}
		slog.Debug("logged cache event", "message", message)
	})
	if err != nil {
		log.Fatalf("Notification cache watch failed: %v", err)
	}
	slog.Info("shutting down")
}
