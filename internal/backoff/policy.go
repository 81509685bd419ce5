// Package backoff provides the bounded, cancellable retry policy that sinks
// apply to their own downstream calls.
package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Policy is a bounded retry schedule: Attempts tries, starting at Delay and
// doubling up to MaxDelay.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration

	// Clock defaults to the wall clock
	Clock clock.Clock
}

// Default is used by sinks that are not given an explicit policy
func Default() Policy {
	return Policy{
		Attempts: 3,
		Delay:    200 * time.Millisecond,
		MaxDelay: 2 * time.Second,
	}
}

// Do calls fn until it succeeds, isFatal reports true for its error, the
// attempts are exhausted, or ctx is done. isFatal may be nil.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, isFatal func(error) bool) error {
	if p.Attempts <= 0 {
		return fmt.Errorf("invalid retry policy: attempts must be greater than 0")
	}
	if p.Delay <= 0 {
		return fmt.Errorf("invalid retry policy: delay must be greater than 0")
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return fn(ctx)
		},
		IsFatalError: func(err error) bool {
			if ctx.Err() != nil {
				return true
			}
			return isFatal != nil && isFatal(err)
		},
		Attempts:    p.Attempts,
		Delay:       p.Delay,
		MaxDelay:    p.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("gave up after %d attempts: %w", p.Attempts, retry.LastError(err))
	case retry.IsRetryStopped(err) || ctx.Err() != nil:
		return fmt.Errorf("retry stopped: %w", ctx.Err())
	default:
		return err
	}
}
