package storage

import (
	"context"

	"github.com/kal997/graph-notification-relay/internal/backoff"
	"github.com/kal997/graph-notification-relay/internal/models"
)

// CacheSink keeps the latest notification per resource in a Storage.
// Deletions evict and everything else overwrites, so redelivery is harmless.
type CacheSink struct {
	store Storage
	retry backoff.Policy
}

// NewCacheSink wraps store; a zero policy means backoff.Default
func NewCacheSink(store Storage, retry backoff.Policy) *CacheSink {
	if retry.Attempts == 0 {
		retry = backoff.Default()
	}
	return &CacheSink{store: store, retry: retry}
}

func (s *CacheSink) Name() string {
	return "redis-cache"
}

func (s *CacheSink) Handle(ctx context.Context, n models.ChangeNotification) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		if n.ChangeType == models.Deleted {
			return s.store.Delete(ctx, n.Resource)
		}
		return s.store.Store(ctx, n)
	}, nil)
}
