package retry

import (
	"context"
	"fmt"
)

// Shape is the declared return shape of a method.
type Shape int

const (
	// ShapeOther is any synchronous or unrecognized result; such calls are never retried.
	ShapeOther Shape = iota
	// ShapeSingle is a deferred computation producing at most one value.
	ShapeSingle
	// ShapeStream is a deferred computation producing any number of values.
	ShapeStream
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeStream:
		return "stream"
	default:
		return "other"
	}
}

// Single is a lazy single-value result. Nothing runs until Await is called, and every
// call to Await runs the computation again.
type Single interface {
	Await(ctx context.Context) (any, error)
}

// Stream is a lazy multi-value result. Subscribe runs the computation, passing each
// value to emit until the stream completes, fails, or emit returns an error.
type Stream interface {
	Subscribe(ctx context.Context, emit func(any) error) error
}

// SingleFunc adapts a function to Single.
type SingleFunc func(ctx context.Context) (any, error)

func (f SingleFunc) Await(ctx context.Context) (any, error) { return f(ctx) }

// StreamFunc adapts a function to Stream.
type StreamFunc func(ctx context.Context, emit func(any) error) error

func (f StreamFunc) Subscribe(ctx context.Context, emit func(any) error) error { return f(ctx, emit) }

// ShapeOf reports the shape of a raw result value.
func ShapeOf(v any) Shape {
	switch v.(type) {
	case Single:
		return ShapeSingle
	case Stream:
		return ShapeStream
	default:
		return ShapeOther
	}
}

// Await runs s and asserts the value to T.
func Await[T any](ctx context.Context, s Single) (T, error) {
	var zero T
	v, err := s.Await(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrShapeMismatch, v, zero)
	}
	return t, nil
}

// Collect subscribes to s and gathers every emitted value.
// Values received before a failure are returned along with the error.
func Collect[T any](ctx context.Context, s Stream) ([]T, error) {
	var out []T
	err := s.Subscribe(ctx, func(v any) error {
		t, ok := v.(T)
		if !ok {
			var zero T
			return fmt.Errorf("%w: got %T, want %T", ErrShapeMismatch, v, zero)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// Just returns a Single yielding v.
func Just(v any) Single {
	return SingleFunc(func(context.Context) (any, error) { return v, nil })
}

// Fail returns a Single failing with err.
func Fail(err error) Single {
	return SingleFunc(func(context.Context) (any, error) { return nil, err })
}

// Items returns a Stream emitting vs in order.
func Items(vs ...any) Stream {
	return StreamFunc(func(ctx context.Context, emit func(any) error) error {
		for _, v := range vs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(v); err != nil {
				return err
			}
		}
		return nil
	})
}
