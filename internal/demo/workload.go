package demo

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"streamretry/internal/declare"
	"streamretry/pkg/retry"
)

// Table returns the declarations of the demo service:
// Lookup delegates to the "patient" executor, Watch tolerates three failures in a row,
// Ping is a recovery method, and everything else on Inventory uses a fixed delay.
func Table() declare.Table {
	patient := declare.DefaultPolicy()
	patient.Mode = retry.ModeExponentialBackoff.String()
	patient.MaxAttempts = 5
	patient.MinDelayMS = 20
	patient.MaxDelayMS = 500
	patient.BackoffFactor = 0.5
	patient.Include = []string{string(retry.CategoryIO)}

	typeWide := declare.DefaultPolicy()
	typeWide.Mode = retry.ModeFixedDelay.String()
	typeWide.FixedDelayMS = 50
	typeWide.Include = []string{string(retry.CategoryIO)}

	watch := declare.DefaultPolicy()
	watch.Mode = retry.ModeMaxConsecutiveAttempts.String()
	watch.Include = []string{string(retry.CategoryIO)}

	lookup := declare.DefaultPolicy()
	lookup.Executor = "patient"

	return declare.Table{
		Executors: []declare.ExecutorRow{{Name: "patient", Policy: patient}},
		Types:     []declare.TypeRow{{Type: string(TypeInventory), Policy: &typeWide}},
		Methods: []declare.MethodRow{
			{Type: string(TypeInventory), Name: MethodLookup.Name, Params: MethodLookup.Params, Returns: "single", Policy: &lookup},
			{Type: string(TypeInventory), Name: MethodWatch.Name, Returns: "stream", Policy: &watch},
			{Type: string(TypeInventory), Name: MethodPing.Name, Returns: "single", Recover: true},
		},
	}
}

// CallFunc runs one call through an interceptor chain.
type CallFunc func(ctx context.Context, target any, method retry.Method, args ...any) (any, error)

// Workload calls the inventory through an interceptor chain, as a host would.
type Workload struct {
	inv   *Inventory
	log   *slog.Logger
	calls map[string]CallFunc
}

// NewWorkload builds one chain per Stock method. Interceptors are sorted by order first.
func NewWorkload(inv *Inventory, log *slog.Logger, interceptors ...retry.Interceptor) *Workload {
	if log == nil {
		log = slog.Default()
	}
	chain := append([]retry.Interceptor(nil), interceptors...)
	retry.SortByOrder(chain)

	w := &Workload{inv: inv, log: log.With(slog.String("component", "demo")), calls: make(map[string]CallFunc)}
	for _, m := range []retry.Method{MethodLookup, MethodWatch, MethodPing} {
		w.calls[m.Name] = retry.Chain(EndpointFor(m), chain...)
	}
	return w
}

// Lookup returns the stock level of sku.
func (w *Workload) Lookup(ctx context.Context, sku string) (Level, error) {
	raw, err := w.calls[MethodLookup.Name](ctx, w.inv, MethodLookup, sku)
	if err != nil {
		return Level{}, err
	}
	single, ok := raw.(retry.Single)
	if !ok {
		return Level{}, retry.ErrShapeMismatch
	}
	return retry.Await[Level](ctx, single)
}

// Watch collects every stock level.
func (w *Workload) Watch(ctx context.Context) ([]Level, error) {
	raw, err := w.calls[MethodWatch.Name](ctx, w.inv, MethodWatch)
	if err != nil {
		return nil, err
	}
	stream, ok := raw.(retry.Stream)
	if !ok {
		return nil, retry.ErrShapeMismatch
	}
	return retry.Collect[Level](ctx, stream)
}

// Ping checks the inventory once.
func (w *Workload) Ping(ctx context.Context) error {
	raw, err := w.calls[MethodPing.Name](ctx, w.inv, MethodPing)
	if err != nil {
		return err
	}
	single, ok := raw.(retry.Single)
	if !ok {
		return retry.ErrShapeMismatch
	}
	_, err = single.Await(ctx)
	return err
}

// Run performs one round: a ping, a lookup of a random SKU and a full watch.
// Call failures are logged; only cancellation is returned.
func (w *Workload) Run(ctx context.Context) error {
	start := time.Now()
	if err := w.Ping(ctx); err != nil {
		w.log.Info("ping failed", slog.Any("err", err))
	}

	skus := w.inv.SKUs()
	if len(skus) > 0 {
		sku := skus[rand.IntN(len(skus))]
		lvl, err := w.Lookup(ctx, sku)
		w.report("lookup", err, slog.String("sku", sku), slog.Int("quantity", lvl.Quantity))
	}

	levels, err := w.Watch(ctx)
	w.report("watch", err, slog.Int("levels", len(levels)))

	w.log.Debug("round done", slog.Duration("duration", time.Since(start)), slog.Int64("inventory_calls", w.inv.Calls()))
	return ctx.Err()
}

func (w *Workload) report(op string, err error, attrs ...any) {
	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		w.log.Debug(op+" ok", attrs...)
	case errors.As(err, &exhausted):
		w.log.Warn(op+" gave up", append(attrs, slog.Int("attempts", exhausted.Attempts), slog.Any("err", exhausted.Last))...)
	default:
		w.log.Info(op+" failed", append(attrs, slog.Any("err", err))...)
	}
}

// CallLogger is an ordered interceptor logging every call at debug level.
type CallLogger struct {
	Log      *slog.Logger
	Position int
}

// Invoke implements retry.Interceptor.
func (c CallLogger) Invoke(ctx context.Context, inv retry.Invocation) (any, error) {
	c.Log.DebugContext(ctx, "call", slog.String("method", inv.Method().String()), slog.Int("args", len(inv.Arguments())))
	return inv.Proceed(ctx)
}

// Order implements retry.Ordered.
func (c CallLogger) Order() int { return c.Position }
