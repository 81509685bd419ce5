package notifier

import (
	"context"
	"time"
)

// Notifier streams mutations of the notification cache
type Notifier interface {
	Subscribe(ctx context.Context, patterns []string) (<-chan CacheEvent, error)
	Unsubscribe(patterns []string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// CacheEvent is one keyspace event on a cached notification
type CacheEvent struct {
	Key       string
	Resource  string // Key without the cache prefix; empty for foreign keys
	Operation string // set, del, expired, ...
	Timestamp time.Time
}
