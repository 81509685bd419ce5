package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kal997/graph-notification-relay/internal/models"
)

var (
	ErrQueueFull   = errors.New("dispatch queue is full")
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

// Options sizes the queue and its worker pool
type Options struct {
	Capacity    int
	Workers     int
	SinkTimeout time.Duration
}

// Queue hands accepted notifications to every registered sink from a fixed
// pool of background workers. Enqueue never blocks.
type Queue struct {
	items       chan models.ChangeNotification
	sinks       []Sink
	workers     int
	sinkTimeout time.Duration
	logger      *slog.Logger
	observer    Observer

	// mu guards closed and the close of items
	mu     sync.RWMutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewQueue creates a queue delivering to sinks. Call Start to run the workers.
func NewQueue(opts Options, logger *slog.Logger, observer Observer, sinks ...Sink) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		items:       make(chan models.ChangeNotification, opts.Capacity),
		sinks:       sinks,
		workers:     opts.Workers,
		sinkTimeout: opts.SinkTimeout,
		logger:      logger,
		observer:    observer,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.run(i)
		}
		q.logger.Info("dispatch queue started", "workers", q.workers, "capacity", cap(q.items), "sinks", len(q.sinks))
	})
}

// Enqueue hands n off without waiting. It returns ErrQueueFull when the
// queue is at capacity and ErrQueueClosed after Shutdown.
func (q *Queue) Enqueue(n models.ChangeNotification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- n:
		q.observer.ObserveQueueDepth(len(q.items))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports the number of notifications waiting for a worker
func (q *Queue) Len() int {
	return len(q.items)
}

// Shutdown stops accepting notifications and lets the workers flush what is
// queued. If ctx expires first, the remaining items are discarded and
// in-flight sink calls see their context cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()

	// Workers that were never started would leave items unconsumed forever
	q.Start()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("dispatch queue flush interrupted: %w", ctx.Err())
	}
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()

	for n := range q.items {
		q.observer.ObserveQueueDepth(len(q.items))

		if q.ctx.Err() != nil {
			q.logger.Warn("discarding notification on shutdown",
				"worker", worker, "receipt_id", n.ReceiptID, "resource", n.Resource)
			continue
		}
		q.deliver(n)
	}
}

// deliver fans n out to every sink concurrently so a slow or failing sink
// cannot hold back the others.
func (q *Queue) deliver(n models.ChangeNotification) {
	var wg sync.WaitGroup
	for _, s := range q.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			q.invoke(s, n)
		}(s)
	}
	wg.Wait()
}

func (q *Queue) invoke(s Sink, n models.ChangeNotification) {
	ctx, cancel := context.WithTimeout(q.ctx, q.sinkTimeout)
	defer cancel()

	err := safeHandle(ctx, s, n)
	q.observer.ObserveSink(s.Name(), err)

	if err != nil {
		q.logger.Error("sink failed",
			"sink", s.Name(),
			"receipt_id", n.ReceiptID,
			"subscription_id", n.SubscriptionID,
			"resource", n.Resource,
			"error", err)
		return
	}
	q.logger.Debug("notification delivered", "sink", s.Name(), "receipt_id", n.ReceiptID)
}

func safeHandle(ctx context.Context, s Sink, n models.ChangeNotification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Handle(ctx, n)
}
