package retry

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// TypeID names a declared type, e.g. "billing.Client".
type TypeID string

// Method identifies an operation on a type.
type Method struct {
	Owner   TypeID
	Name    string
	Params  []string
	Returns Shape
}

// MethodKey is the comparable identity of a Method.
type MethodKey struct {
	Owner  TypeID
	Name   string
	Params string
}

// Key returns the comparable identity of m.
func (m Method) Key() MethodKey {
	return MethodKey{Owner: m.Owner, Name: m.Name, Params: strings.Join(m.Params, ",")}
}

// Signature returns the name and parameter types without the owner.
func (m Method) Signature() string {
	return m.Name + "(" + strings.Join(m.Params, ",") + ")"
}

func (m Method) String() string {
	if m.Owner == "" {
		return m.Signature()
	}
	return string(m.Owner) + "." + m.Signature()
}

// On returns the same method declared on another type.
func (m Method) On(owner TypeID) Method {
	m.Owner = owner
	m.Params = append([]string(nil), m.Params...)
	return m
}

// Invocation is one call passing through an interceptor chain.
type Invocation interface {
	Target() any
	Method() Method
	Arguments() []any
	// Proceed runs the rest of the chain and returns its raw result.
	Proceed(ctx context.Context) (any, error)
}

// Cloneable is implemented by invocations that can be branched and run again.
type Cloneable interface {
	Invocation
	InvocableClone() Invocation
}

// Clone returns an independent copy of inv when it supports cloning, otherwise inv itself.
func Clone(inv Invocation) Invocation {
	if c, ok := inv.(Cloneable); ok {
		return c.InvocableClone()
	}
	return inv
}

// Interceptor sits between a caller and an operation.
type Interceptor interface {
	Invoke(ctx context.Context, inv Invocation) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, inv Invocation) (any, error)

func (f InterceptorFunc) Invoke(ctx context.Context, inv Invocation) (any, error) { return f(ctx, inv) }

// Ordered is implemented by interceptors that care about their position in a chain.
// Lower values run first.
type Ordered interface {
	Order() int
}

// SortByOrder stably sorts interceptors by Order. Interceptors that are not Ordered
// keep their relative position after the ordered ones.
func SortByOrder(interceptors []Interceptor) {
	sort.SliceStable(interceptors, func(i, j int) bool {
		oi, iok := interceptors[i].(Ordered)
		oj, jok := interceptors[j].(Ordered)
		switch {
		case iok && jok:
			return oi.Order() < oj.Order()
		default:
			return iok && !jok
		}
	})
}

// Endpoint is the operation at the end of a chain.
type Endpoint func(ctx context.Context, target any, args []any) (any, error)

// MethodInvocation is a Cloneable invocation over an interceptor chain.
type MethodInvocation struct {
	target   any
	method   Method
	args     []any
	chain    []Interceptor
	index    int
	endpoint Endpoint
}

// NewInvocation returns an invocation that runs chain in order and then endpoint.
func NewInvocation(target any, method Method, endpoint Endpoint, args []any, chain ...Interceptor) *MethodInvocation {
	return &MethodInvocation{
		target:   target,
		method:   method,
		args:     args,
		chain:    chain,
		endpoint: endpoint,
	}
}

func (mi *MethodInvocation) Target() any      { return mi.target }
func (mi *MethodInvocation) Method() Method   { return mi.method }
func (mi *MethodInvocation) Arguments() []any { return mi.args }

// Proceed calls the next interceptor, or the endpoint once the chain is used up.
func (mi *MethodInvocation) Proceed(ctx context.Context) (any, error) {
	if mi.index >= len(mi.chain) {
		if mi.endpoint == nil {
			return nil, fmt.Errorf("retry: no endpoint for %s", mi.method)
		}
		return mi.endpoint(ctx, mi.target, mi.args)
	}
	next := *mi
	next.index++
	return mi.chain[mi.index].Invoke(ctx, &next)
}

// InvocableClone copies the arguments and keeps the chain position, so interceptors
// after the current one run again on the clone.
func (mi *MethodInvocation) InvocableClone() Invocation {
	c := *mi
	c.args = append([]any(nil), mi.args...)
	return &c
}

var _ Cloneable = (*MethodInvocation)(nil)

// Chain composes interceptors around endpoint. The first interceptor is the outermost.
func Chain(endpoint Endpoint, interceptors ...Interceptor) func(ctx context.Context, target any, method Method, args ...any) (any, error) {
	chain := append([]Interceptor(nil), interceptors...)
	return func(ctx context.Context, target any, method Method, args ...any) (any, error) {
		return NewInvocation(target, method, endpoint, args, chain...).Proceed(ctx)
	}
}
