package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Executor runs invocations under a Policy. It implements Interceptor: methods returning
// a Single or a Stream get a lazy result that retries on failure, everything else is
// passed through untouched.
type Executor struct {
	policy   Policy
	clock    Clock
	observer Observer
	newID    func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for delays and elapsed time.
func WithClock(c Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExecutor returns an executor for p.
func NewExecutor(p Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:   p,
		clock:    SystemClock{},
		observer: NoopObserver{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the policy the executor applies.
func (e *Executor) Policy() Policy { return e.policy }

// Invoke wraps the rest of the chain according to the declared return shape.
// Nothing runs until the returned Single is awaited or the Stream subscribed.
func (e *Executor) Invoke(ctx context.Context, inv Invocation) (any, error) {
	switch inv.Method().Returns {
	case ShapeSingle:
		return &retryingSingle{e: e, inv: inv}, nil
	case ShapeStream:
		return &retryingStream{e: e, inv: inv}, nil
	default:
		return inv.Proceed(ctx)
	}
}

// WrapSingle returns a Single that runs fn under the executor's policy.
func (e *Executor) WrapSingle(name string, fn SingleFunc) Single {
	m := Method{Name: name, Returns: ShapeSingle}
	inv := NewInvocation(nil, m, func(context.Context, any, []any) (any, error) { return fn, nil }, nil)
	return &retryingSingle{e: e, inv: inv}
}

// WrapStream returns a Stream that runs fn under the executor's policy.
func (e *Executor) WrapStream(name string, fn StreamFunc) Stream {
	m := Method{Name: name, Returns: ShapeStream}
	inv := NewInvocation(nil, m, func(context.Context, any, []any) (any, error) { return fn, nil }, nil)
	return &retryingStream{e: e, inv: inv}
}

type retryingSingle struct {
	e   *Executor
	inv Invocation
}

func (s *retryingSingle) Await(ctx context.Context) (any, error) { return s.e.awaitSingle(ctx, s.inv) }
func (*retryingSingle) retried()                                 {}

type retryingStream struct {
	e   *Executor
	inv Invocation
}

func (s *retryingStream) Subscribe(ctx context.Context, emit func(any) error) error {
	return s.e.subscribeStream(ctx, s.inv, emit)
}
func (*retryingStream) retried() {}

// IsRetryable reports whether v is a result produced by an Executor.
func IsRetryable(v any) bool {
	_, ok := v.(interface{ retried() })
	return ok
}

// call tracks the counters of one awaited or subscribed result.
type call struct {
	id          string
	method      Method
	start       time.Time
	attempts    int
	retries     int
	consecutive int
}

func (e *Executor) newCall(inv Invocation) *call {
	return &call{id: e.newID(), method: inv.Method(), start: e.clock.Now()}
}

func (e *Executor) event(c *call, err error) Event {
	return Event{
		CallID:  c.id,
		Method:  c.method,
		Mode:    e.policy.Mode(),
		Attempt: c.attempts,
		Err:     err,
		Elapsed: e.clock.Now().Sub(c.start),
	}
}

func (e *Executor) awaitSingle(ctx context.Context, inv Invocation) (any, error) {
	c := e.newCall(inv)
	for {
		if err := ctx.Err(); err != nil {
			return nil, e.abort(ctx, c, err)
		}
		c.attempts++
		raw, err := Clone(inv).Proceed(ctx)
		if err == nil {
			single, ok := raw.(Single)
			if !ok {
				return nil, e.abort(ctx, c, shapeMismatch(raw, ShapeSingle))
			}
			var v any
			if v, err = single.Await(ctx); err == nil {
				e.observer.OnSuccess(ctx, e.event(c, nil))
				return v, nil
			}
		}
		if stop := e.next(ctx, c, err); stop != nil {
			return nil, stop
		}
	}
}

func (e *Executor) subscribeStream(ctx context.Context, inv Invocation, emit func(any) error) error {
	c := e.newCall(inv)
	for {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, c, err)
		}
		c.attempts++
		raw, err := Clone(inv).Proceed(ctx)
		if err == nil {
			stream, ok := raw.(Stream)
			if !ok {
				return e.abort(ctx, c, shapeMismatch(raw, ShapeStream))
			}
			var downstream error
			err = stream.Subscribe(ctx, func(v any) error {
				c.consecutive = 0
				downstream = emit(v)
				return downstream
			})
			if downstream != nil {
				return e.abort(ctx, c, downstream)
			}
			if err == nil {
				e.observer.OnSuccess(ctx, e.event(c, nil))
				return nil
			}
		}
		if stop := e.next(ctx, c, err); stop != nil {
			return stop
		}
	}
}

// next evaluates a failed attempt. It returns nil after waiting out the delay when
// another attempt should run, otherwise the error to hand to the caller.
func (e *Executor) next(ctx context.Context, c *call, failure error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return e.abort(ctx, c, ctxErr)
	}
	if !e.policy.Retryable(failure) {
		e.observer.OnNonRetryable(ctx, e.event(c, failure))
		return failure
	}
	if e.policy.ShouldStop(c.retries, c.consecutive) {
		ex := &ExhaustedError{Last: failure, Attempts: c.attempts, Elapsed: e.clock.Now().Sub(c.start)}
		e.observer.OnExhausted(ctx, e.event(c, failure))
		return ex
	}
	delay := e.policy.Delay(c.retries)
	ev := e.event(c, failure)
	ev.Delay = delay
	e.observer.OnRetry(ctx, ev)
	c.retries++
	c.consecutive++
	if err := e.wait(ctx, delay); err != nil {
		return e.abort(ctx, c, err)
	}
	return nil
}

// abort ends c without consulting the policy: on cancellation, a shape mismatch or
// a downstream error. It is reported as a non-retryable failure.
func (e *Executor) abort(ctx context.Context, c *call, err error) error {
	e.observer.OnNonRetryable(ctx, e.event(c, err))
	return err
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := e.clock.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func shapeMismatch(v any, want Shape) error {
	return fmt.Errorf("%w: want %s, got %T", ErrShapeMismatch, want, v)
}

var _ Interceptor = (*Executor)(nil)
