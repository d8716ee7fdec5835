package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/kuitang/todolist-e2e/internal/errs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_ImmediateTrueDoesNotSleep(t *testing.T) {
	w := &Waiter{Timeout: time.Second, Interval: time.Hour}

	start := time.Now()
	err := w.Until(context.Background(), "ready", func(context.Context) (bool, error) {
		return true, nil
	})
	if err != nil {
		t.Fatalf("Until returned %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("immediate condition took %s", elapsed)
	}
}

func TestUntil_BecomesTrueAfterPolls(t *testing.T) {
	w := &Waiter{Timeout: 2 * time.Second, Interval: 5 * time.Millisecond}

	var calls atomic.Int32
	err := w.Until(context.Background(), "third poll", func(context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	})
	if err != nil {
		t.Fatalf("Until returned %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("condition evaluated %d times, want 3", got)
	}
}

func TestUntil_TimesOutWithTimeoutCode(t *testing.T) {
	w := &Waiter{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond}

	start := time.Now()
	err := w.Until(context.Background(), "never", func(context.Context) (bool, error) {
		return false, nil
	})
	if !errs.Is(err, errs.Timeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout of 50ms took %s", elapsed)
	}
	if msg := errs.MessageOf(err); msg != "timed out after 50ms waiting for never" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestUntil_LookupErrorsKeepPolling(t *testing.T) {
	w := &Waiter{Timeout: 2 * time.Second, Interval: 5 * time.Millisecond}

	var calls atomic.Int32
	err := w.Until(context.Background(), "element", func(context.Context) (bool, error) {
		if calls.Add(1) < 4 {
			return false, errs.New(errs.Lookup, "no .task yet")
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Until returned %v", err)
	}
}

func TestUntil_TimeoutWrapsLastLookupError(t *testing.T) {
	w := &Waiter{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond}
	lookup := errs.New(errs.Lookup, "no .todo")

	err := w.Until(context.Background(), ".todo", func(context.Context) (bool, error) {
		return false, lookup
	})
	if !errs.Is(err, errs.Timeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, lookup) {
		t.Fatalf("timeout error should wrap the last lookup error, got %v", err)
	}
}

func TestUntil_OtherErrorsAbortImmediately(t *testing.T) {
	w := &Waiter{Timeout: 5 * time.Second, Interval: 5 * time.Millisecond}
	boom := errs.New(errs.Session, "browser closed")

	var calls atomic.Int32
	err := w.Until(context.Background(), "x", func(context.Context) (bool, error) {
		calls.Add(1)
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected session error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("condition evaluated %d times after fatal error", calls.Load())
	}
}

func TestUntil_ParentCancellationIsNotATimeout(t *testing.T) {
	w := &Waiter{Timeout: 5 * time.Second, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	err := w.Until(ctx, "x", func(context.Context) (bool, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errs.Is(err, errs.Timeout) {
		t.Fatal("cancellation reported as timeout")
	}
}

func TestWithin_KeepsInterval(t *testing.T) {
	w := &Waiter{Timeout: time.Second, Interval: 7 * time.Millisecond}
	short := w.Within(3 * time.Second)
	if short.Timeout != 3*time.Second || short.Interval != 7*time.Millisecond {
		t.Fatalf("Within produced %+v", short)
	}
	if w.Timeout != time.Second {
		t.Fatal("Within mutated the receiver")
	}
}

func TestZeroWaiterUsesDefaults(t *testing.T) {
	var w *Waiter
	if w.timeout() != DefaultTimeout || w.interval() != DefaultInterval {
		t.Fatal("nil waiter should fall back to defaults")
	}
	if New(0).timeout() != DefaultTimeout {
		t.Fatal("zero timeout should fall back to default")
	}
}

func testUntil_SucceedsIffConditionTurnsTrueInTime(t *rapid.T) {
	trueAfter := rapid.IntRange(1, 6).Draw(t, "trueAfter")
	maxPolls := rapid.IntRange(1, 6).Draw(t, "maxPolls")

	var calls atomic.Int32
	cond := func(context.Context) (bool, error) {
		n := int(calls.Add(1))
		if n > maxPolls {
			// Simulates a page that stops answering; never true past the budget.
			return false, nil
		}
		return n >= trueAfter, nil
	}

	w := &Waiter{Timeout: 40 * time.Millisecond, Interval: time.Millisecond}
	err := w.Until(context.Background(), "prop", cond)
	if trueAfter <= maxPolls {
		if err != nil {
			t.Fatalf("trueAfter=%d maxPolls=%d: unexpected error %v", trueAfter, maxPolls, err)
		}
		return
	}
	if !errs.Is(err, errs.Timeout) {
		t.Fatalf("trueAfter=%d maxPolls=%d: expected timeout, got %v", trueAfter, maxPolls, err)
	}
}

func TestUntil_SucceedsIffConditionTurnsTrueInTime(t *testing.T) {
	rapid.Check(t, testUntil_SucceedsIffConditionTurnsTrueInTime)
}
