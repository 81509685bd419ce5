package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource serves secrets from an in-memory snapshot of a Redis hash
// (field = subscriptionId, value = clientState). The snapshot is replaced by
// Load and kept fresh by Run.
type RedisSource struct {
	client *redis.Client
	key    string
	logger *slog.Logger

	mu      sync.RWMutex
	secrets map[string]string
}

// NewRedisSource creates a source reading hash key through client
func NewRedisSource(client *redis.Client, key string, logger *slog.Logger) *RedisSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{
		client:  client,
		key:     key,
		logger:  logger,
		secrets: make(map[string]string),
	}
}

// Load replaces the snapshot with the current hash contents
func (rs *RedisSource) Load(ctx context.Context) error {
	secrets, err := rs.client.HGetAll(ctx, rs.key).Result()
	if err != nil {
		return fmt.Errorf("failed to load subscriptions from Redis: %w", err)
	}

	rs.mu.Lock()
	rs.secrets = secrets
	rs.mu.Unlock()

	rs.logger.Debug("subscription secrets loaded", "key", rs.key, "count", len(secrets))
	return nil
}

// Run reloads the snapshot every interval until ctx is done. A failed reload
// keeps the previous snapshot.
func (rs *RedisSource) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rs.Load(ctx); err != nil && ctx.Err() == nil {
				rs.logger.Warn("subscription reload failed, keeping previous secrets", "error", err)
			}
		}
	}
}

func (rs *RedisSource) ClientState(subscriptionID string) (string, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	secret, ok := rs.secrets[subscriptionID]
	if !ok || secret == "" {
		return "", false
	}
	return secret, true
}
