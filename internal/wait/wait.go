// Package wait provides a bounded poll-until-true primitive.
//
// Rendering updates are asynchronous relative to the input that caused them, so
// every structural expectation is phrased as "eventually true within T" rather
// than an immediate check. The primitive knows nothing about browsers; callers
// supply the predicate.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/todolist-e2e/internal/errs"
)

const (
	// DefaultTimeout bounds every wait that does not set its own.
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is the pause between predicate evaluations.
	DefaultInterval = 100 * time.Millisecond
)

// Condition is evaluated repeatedly until it reports true.
//
// A lookup error (errs.Lookup) means "not yet" and polling continues. Any other
// error aborts the wait and is returned unchanged.
type Condition func(ctx context.Context) (bool, error)

// Waiter polls conditions with a fixed timeout and interval.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// New returns a Waiter with the given timeout and the default interval.
func New(timeout time.Duration) *Waiter {
	return &Waiter{Timeout: timeout, Interval: DefaultInterval}
}

// Within returns a copy of w with a different timeout.
func (w *Waiter) Within(timeout time.Duration) *Waiter {
	return &Waiter{Timeout: timeout, Interval: w.interval()}
}

func (w *Waiter) timeout() time.Duration {
	if w == nil || w.Timeout <= 0 {
		return DefaultTimeout
	}
	return w.Timeout
}

func (w *Waiter) interval() time.Duration {
	if w == nil || w.Interval <= 0 {
		return DefaultInterval
	}
	return w.Interval
}

// Until blocks until cond holds, the timeout elapses, or ctx is done.
//
// The condition is evaluated once immediately and then at most once per
// interval. One last evaluation is made when the deadline is reached so a
// condition that becomes true during the final interval is not reported as a
// timeout. On timeout the returned error has code errs.Timeout and wraps the
// last lookup error seen, if any. Cancellation of ctx is returned as-is.
func (w *Waiter) Until(ctx context.Context, what string, cond Condition) error {
	timeout := w.timeout()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(w.interval()), 1)
	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses a token that lands past the deadline; sit out the
			// rest of the budget before the final check.
			<-waitCtx.Done()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			ok, condErr := cond(ctx)
			switch {
			case condErr == nil && ok:
				return nil
			case condErr != nil && !errs.Is(condErr, errs.Lookup):
				return condErr
			case condErr != nil:
				lastErr = condErr
			}
			return timeoutError(what, timeout, lastErr)
		}

		ok, err := cond(waitCtx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil {
				return timeoutError(what, timeout, lastErr)
			}
			if !errs.Is(err, errs.Lookup) {
				return err
			}
			lastErr = err
		}
	}
}

func timeoutError(what string, timeout time.Duration, last error) error {
	return errs.Wrap(errs.Timeout, fmt.Sprintf("timed out after %s waiting for %s", timeout, what), last)
}
