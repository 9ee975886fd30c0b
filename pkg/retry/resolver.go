package retry

import "fmt"

// Typed is implemented by targets that report their own TypeID.
type Typed interface {
	RetryType() TypeID
}

// TypeOf returns the TypeID of target: its RetryType when it implements Typed,
// otherwise its Go type name as printed by %T.
func TypeOf(target any) TypeID {
	if t, ok := target.(Typed); ok {
		return t.RetryType()
	}
	return TypeID(fmt.Sprintf("%T", target))
}

// Resolver decides which interceptor, if any, applies to a call.
type Resolver struct {
	registry  *Registry
	executors *Executors
	taxonomy  *Taxonomy
	cache     *Cache
	options   []Option
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTaxonomy sets the taxonomy used to validate and match categories.
func WithTaxonomy(t *Taxonomy) ResolverOption {
	return func(r *Resolver) {
		if t != nil {
			r.taxonomy = t
		}
	}
}

// WithCache sets the resolution cache, e.g. to share it with a sweeper.
func WithCache(c *Cache) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithExecutorOptions sets the options of every executor the resolver builds.
func WithExecutorOptions(opts ...Option) ResolverOption {
	return func(r *Resolver) {
		r.options = append(r.options, opts...)
	}
}

// NewResolver returns a resolver over reg. Named executors are looked up in execs,
// which may be nil when no declaration uses them.
func NewResolver(reg *Registry, execs *Executors, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:  reg,
		executors: execs,
		taxonomy:  defaultTaxonomy,
		cache:     NewCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the resolution cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve returns the interceptor for calling method on target, or nil when the call
// passes through. The result is cached per target and method.
//
// Declarations are looked up in order: the method itself, its declaring type unless
// the method is a recovery method, then the same two steps for the method with the same
// signature on the concrete type of target. A declaration naming an executor resolves
// to that executor. When it cannot be found, or the declaration is invalid, the error
// is returned and the call is cached as pass-through. Only the Resolve that computed the
// entry sees the error; later calls return (nil, nil) until the entry is swept or
// forgotten, after which the error is reported again.
func (r *Resolver) Resolve(target any, method Method) (Interceptor, error) {
	key := method.Key()
	if ic, ok := r.cache.Load(target, key); ok {
		return ic, nil
	}
	ic, err := r.compute(target, method)
	return r.cache.Store(target, key, ic), err
}

func (r *Resolver) compute(target any, method Method) (Interceptor, error) {
	spec, ok := r.Declaration(target, method)
	if !ok {
		return nil, nil
	}
	if spec.Custom() {
		return r.executors.Lookup(spec.Executor)
	}
	policy, err := Build(spec, r.taxonomy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return NewExecutor(policy, r.options...), nil
}

// Declaration returns the spec that applies to calling method on target.
func (r *Resolver) Declaration(target any, method Method) (PolicySpec, bool) {
	if spec, ok := r.declared(method); ok {
		return spec, true
	}
	concrete := TypeOf(target)
	if target == nil || concrete == method.Owner {
		return PolicySpec{}, false
	}
	impl, ok := r.registry.FindMethod(concrete, method)
	if !ok {
		return PolicySpec{}, false
	}
	return r.declared(impl)
}

func (r *Resolver) declared(m Method) (PolicySpec, bool) {
	if spec, ok := r.registry.MethodSpec(m); ok {
		return spec, true
	}
	if r.registry.IsRecover(m) {
		return PolicySpec{}, false
	}
	return r.registry.TypeSpec(m.Owner)
}
