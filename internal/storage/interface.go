package storage

import (
	"context"

	"github.com/kal997/graph-notification-relay/internal/models"
)

// Storage defines the database-agnostic notification cache
type Storage interface {
	// Store saves the latest notification for its resource
	Store(ctx context.Context, n models.ChangeNotification) error

	// Delete evicts the cached notification for a resource
	Delete(ctx context.Context, resource string) error

	// HealthCheck verifies storage connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}
