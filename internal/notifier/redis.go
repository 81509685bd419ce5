package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kal997/graph-notification-relay/internal/models"
)

// RedisNotifier implements Notifier using Redis keyspace notifications
type RedisNotifier struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	patterns []string
	prefix   string
}

// NewRedisNotifier creates a new Redis notifier watching database 0
func NewRedisNotifier(addr string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisNotifier{
		client: client,
		prefix: keyspacePrefix(0),
	}, nil
}

func keyspacePrefix(db int) string {
	return fmt.Sprintf("__keyspace@%d__:", db)
}

// EnableKeyspaceEvents asks the server to publish generic and string
// keyspace events, including expirations. Managed Redis offerings often
// forbid CONFIG SET, in which case it must be configured out of band.
func (rn *RedisNotifier) EnableKeyspaceEvents(ctx context.Context) error {
	if err := rn.client.ConfigSet(ctx, "notify-keyspace-events", "K$gx").Err(); err != nil {
		return fmt.Errorf("failed to enable keyspace events: %w", err)
	}
	return nil
}

// Subscribe to Redis keyspace notifications
func (rn *RedisNotifier) Subscribe(ctx context.Context, patterns []string) (<-chan CacheEvent, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns provided")
	}

	keyspacePatterns := rn.keyspacePatterns(patterns)

	rn.pubsub = rn.client.PSubscribe(ctx, keyspacePatterns...)
	rn.patterns = keyspacePatterns

	eventChan := make(chan CacheEvent, 100)
	messages := rn.pubsub.Channel()

	go func() {
		defer close(eventChan)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				event := rn.parseMessage(msg)
				if event == nil {
					continue
				}
				select {
				case eventChan <- *event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}

// parseMessage converts a keyspace message to a CacheEvent.
// Channel format: __keyspace@0__:graph:notif:{resource}, payload: operation.
func (rn *RedisNotifier) parseMessage(msg *redis.Message) *CacheEvent {
	if msg == nil || !strings.HasPrefix(msg.Channel, rn.prefix) {
		return nil
	}

	key := strings.TrimPrefix(msg.Channel, rn.prefix)
	event := &CacheEvent{
		Key:       key,
		Operation: msg.Payload,
		Timestamp: time.Now(),
	}
	if strings.HasPrefix(key, models.CacheKeyPrefix) {
		event.Resource = strings.TrimPrefix(key, models.CacheKeyPrefix)
	}
	return event
}

// Unsubscribe from patterns
func (rn *RedisNotifier) Unsubscribe(patterns []string) error {
	if rn.pubsub == nil {
		return fmt.Errorf("not subscribed")
	}

	return rn.pubsub.PUnsubscribe(context.Background(), rn.keyspacePatterns(patterns)...)
}

func (rn *RedisNotifier) keyspacePatterns(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, pattern := range patterns {
		out[i] = rn.prefix + pattern
	}
	return out
}

// HealthCheck verifies Redis connectivity
func (rn *RedisNotifier) HealthCheck(ctx context.Context) error {
	return rn.client.Ping(ctx).Err()
}

// Close closes the notifier and cleans up resources
func (rn *RedisNotifier) Close() error {
	var err error

	if rn.pubsub != nil {
		err = rn.pubsub.Close()
	}

	if rn.client != nil {
		if closeErr := rn.client.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}
