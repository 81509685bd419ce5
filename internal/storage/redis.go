package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kal997/graph-notification-relay/internal/config"
	"github.com/kal997/graph-notification-relay/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Storage interface using Redis
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(cfg *config.Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.GetRedisAddr(),
		DB:   0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		ttl:    cfg.GetRecordTTL(),
	}, nil
}

// Client exposes the underlying connection for components sharing it
func (rs *RedisStorage) Client() *redis.Client {
	return rs.client
}

// Store saves the redacted notification under its resource key
func (rs *RedisStorage) Store(ctx context.Context, n models.ChangeNotification) error {
	key := n.CacheKey()

	data, err := json.Marshal(n.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := rs.client.Set(ctx, key, data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store notification in Redis: %w", err)
	}

	return nil
}

// Delete evicts the cached notification for resource
func (rs *RedisStorage) Delete(ctx context.Context, resource string) error {
	if err := rs.client.Del(ctx, models.CacheKeyPrefix+resource).Err(); err != nil {
		return fmt.Errorf("failed to delete notification from Redis: %w", err)
	}
	return nil
}

// Get returns the cached notification for resource
func (rs *RedisStorage) Get(ctx context.Context, resource string) (*models.ChangeNotification, error) {
	data, err := rs.client.Get(ctx, models.CacheKeyPrefix+resource).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notification from Redis: %w", err)
	}

	var n models.ChangeNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return &n, nil
}

// HealthCheck verifies Redis connectivity
func (rs *RedisStorage) HealthCheck(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
