package notifier

import (
	"context"
	"fmt"
)

// Drain subscribes n to patterns and calls handle for every event until ctx
// is done or the event stream ends. It returns nil on cancellation.
func Drain(ctx context.Context, n Notifier, patterns []string, handle func(CacheEvent)) error {
	events, err := n.Subscribe(ctx, patterns)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("event stream closed")
			}
			handle(event)
		}
	}
}
