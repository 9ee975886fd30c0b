package retry

import (
	"context"
	"log/slog"
)

// DefaultOrder places the advisor after interceptors with a lower order.
const DefaultOrder = 0

// Advisor is the interceptor a host installs on every call site. It resolves the
// applicable interceptor and delegates to it, or lets the call through.
type Advisor struct {
	resolver         *Resolver
	order            int
	proxyTargetClass bool
	onError          func(ctx context.Context, inv Invocation, err error)
}

// AdvisorOption configures an Advisor.
type AdvisorOption func(*Advisor)

// WithOrder sets the position of the advisor among ordered interceptors.
func WithOrder(order int) AdvisorOption {
	return func(a *Advisor) { a.order = order }
}

// WithProxyTargetClass records whether the host wraps concrete types rather than
// interfaces.
func WithProxyTargetClass(v bool) AdvisorOption {
	return func(a *Advisor) { a.proxyTargetClass = v }
}

// WithResolveErrorHandler sets the function receiving resolution errors. The call
// itself then passes through without retries.
func WithResolveErrorHandler(fn func(ctx context.Context, inv Invocation, err error)) AdvisorOption {
	return func(a *Advisor) {
		if fn != nil {
			a.onError = fn
		}
	}
}

// NewAdvisor returns an advisor using r.
func NewAdvisor(r *Resolver, opts ...AdvisorOption) *Advisor {
	a := &Advisor{resolver: r, order: DefaultOrder}
	a.onError = func(ctx context.Context, inv Invocation, err error) {
		slog.Default().ErrorContext(ctx, "retry resolution failed",
			slog.String("method", inv.Method().String()),
			slog.Any("err", err),
		)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke implements Interceptor.
func (a *Advisor) Invoke(ctx context.Context, inv Invocation) (any, error) {
	ic, err := a.resolver.Resolve(inv.Target(), inv.Method())
	if err != nil {
		a.onError(ctx, inv, err)
	}
	if ic == nil {
		return inv.Proceed(ctx)
	}
	return ic.Invoke(ctx, inv)
}

// Order implements Ordered.
func (a *Advisor) Order() int { return a.order }

// ProxyTargetClass reports the configured proxy mode.
func (a *Advisor) ProxyTargetClass() bool { return a.proxyTargetClass }

var (
	_ Interceptor = (*Advisor)(nil)
	_ Ordered     = (*Advisor)(nil)
)
