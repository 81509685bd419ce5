package dispatch

import (
	"context"

	"github.com/kal997/graph-notification-relay/internal/models"
)

// Sink consumes accepted notifications. Delivery is at least once, so
// implementations must tolerate duplicates. Retrying is the sink's job.
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Handle processes one notification
	Handle(ctx context.Context, n models.ChangeNotification) error
}

// Observer receives dispatch outcomes, fire-and-forget
type Observer interface {
	ObserveSink(sink string, err error)
	ObserveQueueDepth(depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveSink(string, error) {}
func (nopObserver) ObserveQueueDepth(int)     {}
