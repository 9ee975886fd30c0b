// Package demo is a small workload exercising retried single and stream call sites
// against a simulated flaky inventory service.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"streamretry/pkg/retry"
)

// Type ids of the demo service. Callers see the Stock interface; the declarations
// live on the concrete Inventory type.
const (
	TypeStock     retry.TypeID = "demo.Stock"
	TypeInventory retry.TypeID = "demo.Inventory"
)

// Methods of the Stock interface.
var (
	MethodLookup = retry.Method{Owner: TypeStock, Name: "Lookup", Params: []string{"string"}, Returns: retry.ShapeSingle}
	MethodWatch  = retry.Method{Owner: TypeStock, Name: "Watch", Returns: retry.ShapeStream}
	MethodPing   = retry.Method{Owner: TypeStock, Name: "Ping", Returns: retry.ShapeSingle}
)

// Level is one stock level emitted by Watch.
type Level struct {
	SKU      string
	Quantity int
}

// Inventory simulates a remote stock service. Every operation fails with a transient
// io failure with probability FailRate; lookups of unknown SKUs fail with not_found.
type Inventory struct {
	FailRate float64

	mu    sync.RWMutex
	stock map[string]int
	// roll returns a number in [0, 1); replaced in tests
	roll  func() float64
	calls atomic.Int64
}

// NewInventory returns an inventory holding stock.
func NewInventory(failRate float64, stock map[string]int) *Inventory {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &Inventory{FailRate: failRate, stock: s, roll: rand.Float64}
}

// RetryType implements retry.Typed.
func (*Inventory) RetryType() retry.TypeID { return TypeInventory }

// Calls returns the number of operations started so far, retries included.
func (i *Inventory) Calls() int64 { return i.calls.Load() }

// SKUs returns the known SKUs in sorted order.
func (i *Inventory) SKUs() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, len(i.stock))
	for k := range i.stock {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (i *Inventory) flaky() error {
	if i.roll() < i.FailRate {
		return retry.NewFailure(retry.CategoryIO, "inventory: connection reset")
	}
	return nil
}

// Lookup returns a lazy lookup of sku.
func (i *Inventory) Lookup(sku string) retry.Single {
	return retry.SingleFunc(func(ctx context.Context) (any, error) {
		i.calls.Add(1)
		if err := i.flaky(); err != nil {
			return nil, err
		}
		i.mu.RLock()
		q, ok := i.stock[sku]
		i.mu.RUnlock()
		if !ok {
			return nil, retry.NewFailure(retry.CategoryNotFound, fmt.Sprintf("inventory: unknown sku %q", sku))
		}
		return Level{SKU: sku, Quantity: q}, nil
	})
}

// Watch returns a lazy stream of every stock level. It may fail part way through.
func (i *Inventory) Watch() retry.Stream {
	return retry.StreamFunc(func(ctx context.Context, emit func(any) error) error {
		i.calls.Add(1)
		for _, sku := range i.SKUs() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := i.flaky(); err != nil {
				return err
			}
			i.mu.RLock()
			q := i.stock[sku]
			i.mu.RUnlock()
			if err := emit(Level{SKU: sku, Quantity: q}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping checks connectivity. It is declared as a recovery method and never retried.
func (i *Inventory) Ping() retry.Single {
	return retry.SingleFunc(func(context.Context) (any, error) {
		i.calls.Add(1)
		if err := i.flaky(); err != nil {
			return nil, err
		}
		return "pong", nil
	})
}

// EndpointFor returns the endpoint serving method on *Inventory targets.
func EndpointFor(method retry.Method) retry.Endpoint {
	return func(_ context.Context, target any, args []any) (any, error) {
		inv, ok := target.(*Inventory)
		if !ok {
			return nil, fmt.Errorf("demo: target %T is not an inventory", target)
		}
		switch method.Name {
		case MethodLookup.Name:
			if len(args) != 1 {
				return nil, fmt.Errorf("demo: %s takes one argument, got %d", method, len(args))
			}
			sku, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("demo: %s wants a string, got %T", method, args[0])
			}
			return inv.Lookup(sku), nil
		case MethodWatch.Name:
			return inv.Watch(), nil
		case MethodPing.Name:
			return inv.Ping(), nil
		default:
			return nil, fmt.Errorf("demo: unknown method %s", method)
		}
	}
}
