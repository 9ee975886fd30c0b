package retry_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"streamretry/pkg/retry"
)

// fakeClock fires every timer immediately and records the requested delays.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) retry.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return &fakeTimer{ch: ch}
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type fakeTimer struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { return t.stopped.CompareAndSwap(false, true) }

// stuckClock returns timers that never fire and signals each one it hands out.
type stuckClock struct {
	started chan *fakeTimer
}

func (c *stuckClock) Now() time.Time { return time.Time{} }

func (c *stuckClock) NewTimer(time.Duration) retry.Timer {
	t := &fakeTimer{ch: make(chan time.Time)}
	c.started <- t
	return t
}

// flaky fails the first failures calls with err and then succeeds with "ok".
type flaky struct {
	calls    atomic.Int32
	failures int
	err      error
}

func (f *flaky) single() retry.SingleFunc {
	return func(context.Context) (any, error) {
		n := int(f.calls.Add(1))
		if f.failures < 0 || n <= f.failures {
			return nil, f.err
		}
		return "ok", nil
	}
}

// stream is single as a one-value stream.
func (f *flaky) stream() retry.StreamFunc {
	return func(_ context.Context, emit func(any) error) error {
		n := int(f.calls.Add(1))
		if f.failures < 0 || n <= f.failures {
			return f.err
		}
		return emit("ok")
	}
}

func (f *flaky) Calls() int { return int(f.calls.Load()) }

// alwaysFailing returns a flaky that never succeeds.
func alwaysFailing(err error) *flaky {
	return &flaky{failures: -1, err: err}
}

func mustBuild(spec retry.PolicySpec) retry.Policy {
	return retry.MustBuild(spec, nil)
}

func specWith(f func(*retry.PolicySpec)) retry.PolicySpec {
	s := retry.DefaultSpec()
	f(&s)
	return s
}
