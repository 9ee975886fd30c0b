package demo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamretry/internal/declare"
	"streamretry/pkg/retry"
)

// rolls returns a roll function yielding vs in order, then values that never fail.
func rolls(vs ...float64) func() float64 {
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(vs) == 0 {
			return 0.99
		}
		v := vs[0]
		vs = vs[1:]
		return v
	}
}

const (
	fail = 0.0
	pass = 0.99
)

func newWorkload(t *testing.T, inv *Inventory, extra ...retry.Interceptor) *Workload {
	t.Helper()
	reg := retry.NewRegistry()
	execs := retry.NewExecutors()
	require.NoError(t, declare.Apply(Table(), declare.Target{Registry: reg, Executors: execs}))

	resolver := retry.NewResolver(reg, execs)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorkload(inv, log, append(extra, retry.NewAdvisor(resolver))...)
}

func TestTableIsValid(t *testing.T) {
	tbl := Table()
	require.NoError(t, tbl.Validate())
	assert.Equal(t, 5, tbl.Len())
}

func TestLookupRetriesTransientFailures(t *testing.T) {
	inv := NewInventory(0.5, map[string]int{"apple": 3})
	inv.roll = rolls(fail, fail, pass)
	w := newWorkload(t, inv)

	lvl, err := w.Lookup(context.Background(), "apple")
	require.NoError(t, err)
	assert.Equal(t, Level{SKU: "apple", Quantity: 3}, lvl)
	assert.EqualValues(t, 3, inv.Calls())
}

func TestLookupNotFoundIsNotRetried(t *testing.T) {
	inv := NewInventory(0, map[string]int{"apple": 3})
	w := newWorkload(t, inv)

	_, err := w.Lookup(context.Background(), "pear")
	require.Error(t, err)
	assert.Equal(t, retry.CategoryNotFound, retry.CategoryOf(err))
	assert.False(t, retry.IsExhausted(err))
	assert.EqualValues(t, 1, inv.Calls())
}

func TestPingIsNeverRetried(t *testing.T) {
	inv := NewInventory(1, nil)
	w := newWorkload(t, inv)

	err := w.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, retry.CategoryIO, retry.CategoryOf(err))
	assert.EqualValues(t, 1, inv.Calls())
}

func TestWatchGivesUpAfterConsecutiveFailures(t *testing.T) {
	inv := NewInventory(1, map[string]int{"apple": 3})
	w := newWorkload(t, inv)

	_, err := w.Watch(context.Background())
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.EqualValues(t, 4, inv.Calls())
}

func TestWatchResubscribesAfterPartialFailure(t *testing.T) {
	inv := NewInventory(0.5, map[string]int{"apple": 3, "pear": 1})
	// apple is emitted, pear fails, then the second subscription completes
	inv.roll = rolls(pass, fail, pass, pass)
	w := newWorkload(t, inv)

	levels, err := w.Watch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Level{
		{SKU: "apple", Quantity: 3},
		{SKU: "apple", Quantity: 3},
		{SKU: "pear", Quantity: 1},
	}, levels)
	assert.EqualValues(t, 2, inv.Calls())
}

func TestInterceptorsAreOrdered(t *testing.T) {
	var seen []string
	record := func(name string, order int) retry.Interceptor {
		return orderedFunc{order: order, fn: func(ctx context.Context, inv retry.Invocation) (any, error) {
			seen = append(seen, name)
			return inv.Proceed(ctx)
		}}
	}
	inv := NewInventory(0, map[string]int{"apple": 3})
	w := newWorkload(t, inv, record("late", 10), record("early", -10))

	require.NoError(t, w.Ping(context.Background()))
	assert.Equal(t, []string{"early", "late"}, seen)
}

func TestRunLogsFailuresAndStopsOnCancel(t *testing.T) {
	inv := NewInventory(1, map[string]int{"apple": 3})
	w := newWorkload(t, inv, CallLogger{Log: slog.New(slog.NewTextHandler(io.Discard, nil)), Position: -100})

	assert.NoError(t, w.Run(context.Background()))
	assert.Positive(t, inv.Calls())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(w.Run(ctx), context.Canceled))
}

func TestEndpointRejectsBadCalls(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory(0, nil)

	_, err := EndpointFor(MethodLookup)(ctx, "not an inventory", []any{"apple"})
	assert.Error(t, err)
	_, err = EndpointFor(MethodLookup)(ctx, inv, nil)
	assert.Error(t, err)
	_, err = EndpointFor(MethodLookup)(ctx, inv, []any{42})
	assert.Error(t, err)
	_, err = EndpointFor(retry.Method{Owner: TypeStock, Name: "Restock"})(ctx, inv, nil)
	assert.Error(t, err)
}

type orderedFunc struct {
	order int
	fn    retry.InterceptorFunc
}

func (o orderedFunc) Invoke(ctx context.Context, inv retry.Invocation) (any, error) {
	return o.fn(ctx, inv)
}

func (o orderedFunc) Order() int { return o.order }
