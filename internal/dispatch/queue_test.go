package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kal997/graph-notification-relay/internal/models"
)

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []models.ChangeNotification
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(ctx context.Context, n models.ChangeNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSink) received() []models.ChangeNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChangeNotification, len(s.got))
	copy(out, s.got)
	return out
}

// blockingSink holds every call until release is closed or ctx ends
type blockingSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	ctxErrs []error
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Handle(ctx context.Context, n models.ChangeNotification) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.ctxErrs = append(s.ctxErrs, ctx.Err())
		s.mu.Unlock()
		return ctx.Err()
	}
}

type panicSink struct{}

func (panicSink) Name() string { return "panic" }
func (panicSink) Handle(context.Context, models.ChangeNotification) error {
	panic("boom")
}

type fakeObserver struct {
	mu      sync.Mutex
	results map[string][]error
}

func (o *fakeObserver) ObserveSink(sink string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string][]error)
	}
	o.results[sink] = append(o.results[sink], err)
}

func (o *fakeObserver) ObserveQueueDepth(int) {}

func (o *fakeObserver) count(sink string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.results[sink])
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notification(resource string) models.ChangeNotification {
	return models.ChangeNotification{
		SubscriptionID: "sub1",
		ChangeType:     models.Created,
		Resource:       resource,
	}
}

func TestQueue_DeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	q := NewQueue(Options{Capacity: 10, Workers: 2, SinkTimeout: time.Second}, testLogger(), nil, a, b)
	q.Start()

	for _, r := range []string{"me/events/1", "me/events/2", "me/events/3"} {
		require.NoError(t, q.Enqueue(notification(r)))
	}

	require.NoError(t, q.Shutdown(context.Background()))

	assert.Len(t, a.received(), 3)
	assert.Len(t, b.received(), 3)
}

func TestQueue_FailingSinkIsIsolated(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("redis down")}
	healthy := &recordingSink{name: "healthy"}
	obs := &fakeObserver{}
	q := NewQueue(Options{Capacity: 10, Workers: 1, SinkTimeout: time.Second}, testLogger(), obs, failing, panicSink{}, healthy)
	q.Start()

	require.NoError(t, q.Enqueue(notification("me/events/AAA")))
	require.NoError(t, q.Enqueue(notification("me/events/BBB")))
	require.NoError(t, q.Shutdown(context.Background()))

	assert.Len(t, healthy.received(), 2)
	assert.Len(t, failing.received(), 2)
	assert.Equal(t, 2, obs.count("healthy"))
	assert.Equal(t, 2, obs.count("panic"))
	for _, err := range obs.results["panic"] {
		assert.ErrorContains(t, err, "sink panicked")
	}
	for _, err := range obs.results["healthy"] {
		assert.NoError(t, err)
	}
}

func TestQueue_SlowSinkDoesNotDelayOthers(t *testing.T) {
	slow := newBlockingSink()
	fast := &recordingSink{name: "fast"}
	q := NewQueue(Options{Capacity: 10, Workers: 1, SinkTimeout: 5 * time.Second}, testLogger(), nil, slow, fast)
	q.Start()

	require.NoError(t, q.Enqueue(notification("me/events/AAA")))

	assert.Eventually(t, func() bool { return len(fast.received()) == 1 }, time.Second, 5*time.Millisecond)

	close(slow.release)
	require.NoError(t, q.Shutdown(context.Background()))
}

func TestQueue_EnqueueFullDoesNotBlock(t *testing.T) {
	sink := &recordingSink{name: "a"}
	// Workers not started: nothing drains the queue
	q := NewQueue(Options{Capacity: 2, Workers: 1}, testLogger(), nil, sink)

	require.NoError(t, q.Enqueue(notification("1")))
	require.NoError(t, q.Enqueue(notification("2")))

	start := time.Now()
	err := q.Enqueue(notification("3"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	// Shutdown starts the workers and flushes the two accepted items
	require.NoError(t, q.Shutdown(context.Background()))
	got := sink.received()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Resource)
	assert.Equal(t, "2", got[1].Resource)
}

func TestQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(Options{Capacity: 2, Workers: 1}, testLogger(), nil)
	q.Start()
	require.NoError(t, q.Shutdown(context.Background()))

	assert.ErrorIs(t, q.Enqueue(notification("late")), ErrQueueClosed)
	// Second shutdown is harmless
	assert.NoError(t, q.Shutdown(context.Background()))
}

func TestQueue_ShutdownTimeoutCancelsInFlight(t *testing.T) {
	slow := newBlockingSink()
	q := NewQueue(Options{Capacity: 10, Workers: 1, SinkTimeout: time.Minute}, testLogger(), nil, slow)
	q.Start()

	require.NoError(t, q.Enqueue(notification("1")))
	require.NoError(t, q.Enqueue(notification("2")))
	<-slow.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	slow.mu.Lock()
	defer slow.mu.Unlock()
	// Only the in-flight call was cancelled; the queued item was discarded
	require.Len(t, slow.ctxErrs, 1)
	assert.ErrorIs(t, slow.ctxErrs[0], context.Canceled)
}

func TestQueue_SinkTimeout(t *testing.T) {
	slow := newBlockingSink()
	obs := &fakeObserver{}
	q := NewQueue(Options{Capacity: 1, Workers: 1, SinkTimeout: 20 * time.Millisecond}, testLogger(), obs, slow)
	q.Start()

	require.NoError(t, q.Enqueue(notification("1")))
	require.NoError(t, q.Shutdown(context.Background()))

	require.Equal(t, 1, obs.count("blocking"))
	assert.ErrorIs(t, obs.results["blocking"][0], context.DeadlineExceeded)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	sink := &recordingSink{name: "a"}
	q := NewQueue(Options{Capacity: 1000, Workers: 4, SinkTimeout: time.Second}, testLogger(), nil, sink)
	q.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, q.Enqueue(notification("r")))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, q.Shutdown(context.Background()))
	assert.Len(t, sink.received(), 500)
}

func TestNewQueue_Defaults(t *testing.T) {
	q := NewQueue(Options{}, nil, nil)
	assert.Equal(t, 1, cap(q.items))
	assert.Equal(t, 1, q.workers)
	assert.Equal(t, 10*time.Second, q.sinkTimeout)
	assert.NotNil(t, q.logger)
	assert.NotNil(t, q.observer)
}
