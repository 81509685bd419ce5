package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	notifier, err := NewRedisNotifier(mr.Addr())
	require.NoError(t, err)
	return notifier, mr, func() {
		notifier.Close()
		mr.Close()
	}
}

func TestNewRedisNotifier(t *testing.T) {
	tests := []struct {
		name        string
		setupRedis  func() (string, func())
		wantErr     bool
		errContains string
	}{
		{
			name: "successful connection",
			setupRedis: func() (string, func()) {
				mr, err := miniredis.Run()
				require.NoError(t, err)
				return mr.Addr(), func() { mr.Close() }
			},
			wantErr: false,
		},
		{
			name: "connection failure - invalid address",
			setupRedis: func() (string, func()) {
				return "invalid:address:format", func() {}
			},
			wantErr:     true,
			errContains: "failed to connect to Redis",
		},
		{
			name: "connection failure - unreachable host",
			setupRedis: func() (string, func()) {
				return "127.0.0.1:59999", func() {}
			},
			wantErr:     true,
			errContains: "failed to connect to Redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, cleanup := tt.setupRedis()
			defer cleanup()

			notifier, err := NewRedisNotifier(addr)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, notifier)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, notifier)
				assert.NotNil(t, notifier.client)
				assert.Equal(t, "__keyspace@0__:", notifier.prefix)
				notifier.Close()
			}
		})
	}
}

func TestRedisNotifier_Subscribe(t *testing.T) {
	tests := []struct {
		name        string
		patterns    []string
		wantErr     bool
		errContains string
	}{
		{
			name:     "single pattern",
			patterns: []string{"graph:notif:*"},
		},
		{
			name:     "multiple patterns",
			patterns: []string{"graph:notif:*", "graph:subscriptions"},
		},
		{
			name:        "empty patterns error",
			patterns:    []string{},
			wantErr:     true,
			errContains: "no patterns provided",
		},
		{
			name:        "nil patterns slice",
			patterns:    nil,
			wantErr:     true,
			errContains: "no patterns provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier, _, cleanup := newTestNotifier(t)
			defer cleanup()

			eventChan, err := notifier.Subscribe(context.Background(), tt.patterns)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, eventChan)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, eventChan)
			assert.NotNil(t, notifier.pubsub)
			require.Len(t, notifier.patterns, len(tt.patterns))
			for i, pattern := range tt.patterns {
				assert.Equal(t, "__keyspace@0__:"+pattern, notifier.patterns[i])
			}
		})
	}
}

func TestRedisNotifier_Subscribe_ReceivesEvents(t *testing.T) {
	notifier, mr, cleanup := newTestNotifier(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventChan, err := notifier.Subscribe(ctx, []string{"graph:notif:*"})
	require.NoError(t, err)

	var got CacheEvent
	// The subscription becomes active asynchronously; publish until it lands
	require.Eventually(t, func() bool {
		mr.Publish("__keyspace@0__:graph:notif:me/events/AAA", "set")
		select {
		case got = <-eventChan:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "graph:notif:me/events/AAA", got.Key)
	assert.Equal(t, "me/events/AAA", got.Resource)
	assert.Equal(t, "set", got.Operation)
}

func TestRedisNotifier_Subscribe_ContextCancellation(t *testing.T) {
	notifier, _, cleanup := newTestNotifier(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	eventChan, err := notifier.Subscribe(ctx, []string{"graph:notif:*"})
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-eventChan:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
}

func TestRedisNotifier_parseMessage(t *testing.T) {
	notifier := &RedisNotifier{prefix: keyspacePrefix(0)}

	tests := []struct {
		name     string
		msg      *redis.Message
		expected *CacheEvent
	}{
		{
			name: "cached notification set",
			msg: &redis.Message{
				Channel: "__keyspace@0__:graph:notif:Users/abc/Events/AAA",
				Payload: "set",
			},
			expected: &CacheEvent{
				Key:       "graph:notif:Users/abc/Events/AAA",
				Resource:  "Users/abc/Events/AAA",
				Operation: "set",
			},
		},
		{
			name: "expired operation",
			msg: &redis.Message{
				Channel: "__keyspace@0__:graph:notif:me/events/BBB",
				Payload: "expired",
			},
			expected: &CacheEvent{
				Key:       "graph:notif:me/events/BBB",
				Resource:  "me/events/BBB",
				Operation: "expired",
			},
		},
		{
			name: "foreign key has no resource",
			msg: &redis.Message{
				Channel: "__keyspace@0__:some:key",
				Payload: "del",
			},
			expected: &CacheEvent{
				Key:       "some:key",
				Operation: "del",
			},
		},
		{
			name: "missing prefix",
			msg: &redis.Message{
				Channel: "invalid:channel",
				Payload: "set",
			},
			expected: nil,
		},
		{
			name: "other database",
			msg: &redis.Message{
				Channel: "__keyspace@1__:graph:notif:x",
				Payload: "set",
			},
			expected: nil,
		},
		{
			name:     "nil message",
			msg:      nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := notifier.parseMessage(tt.msg)

			if tt.expected == nil {
				assert.Nil(t, result)
				return
			}

			require.NotNil(t, result)
			assert.Equal(t, tt.expected.Key, result.Key)
			assert.Equal(t, tt.expected.Resource, result.Resource)
			assert.Equal(t, tt.expected.Operation, result.Operation)
			assert.WithinDuration(t, time.Now(), result.Timestamp, 100*time.Millisecond)
		})
	}
}

func TestRedisNotifier_Unsubscribe(t *testing.T) {
	t.Run("without subscription", func(t *testing.T) {
		notifier, _, cleanup := newTestNotifier(t)
		defer cleanup()

		err := notifier.Unsubscribe([]string{"graph:notif:*"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not subscribed")
	})

	t.Run("after subscription", func(t *testing.T) {
		notifier, _, cleanup := newTestNotifier(t)
		defer cleanup()

		_, err := notifier.Subscribe(context.Background(), []string{"graph:notif:*", "graph:subscriptions"})
		require.NoError(t, err)

		assert.NoError(t, notifier.Unsubscribe([]string{"graph:notif:*"}))
	})
}

func TestRedisNotifier_HealthCheck(t *testing.T) {
	notifier, mr, cleanup := newTestNotifier(t)
	defer cleanup()

	assert.NoError(t, notifier.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, notifier.HealthCheck(context.Background()))
}

func TestRedisNotifier_Close(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	notifier, err := NewRedisNotifier(mr.Addr())
	require.NoError(t, err)

	_, err = notifier.Subscribe(context.Background(), []string{"graph:notif:*"})
	require.NoError(t, err)

	assert.NoError(t, notifier.Close())
}
