package retry

import (
	"fmt"
	"sync"
)

// Registry holds retry declarations keyed by type and method.
// It is normally filled once at start-up and read by a Resolver afterwards.
type Registry struct {
	mu           sync.RWMutex
	types        map[TypeID]PolicySpec
	methods      map[MethodKey]PolicySpec
	recover      map[MethodKey]struct{}
	recoverTypes map[TypeID]struct{}
	members      map[TypeID]map[string]Method
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:        make(map[TypeID]PolicySpec),
		methods:      make(map[MethodKey]PolicySpec),
		recover:      make(map[MethodKey]struct{}),
		recoverTypes: make(map[TypeID]struct{}),
		members:      make(map[TypeID]map[string]Method),
	}
}

// DeclareType attaches spec to every method whose owner is t.
func (r *Registry) DeclareType(t TypeID, spec PolicySpec) error {
	if t == "" {
		return &ConfigError{Field: "type", Reason: "empty type id"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t] = spec
	return nil
}

// DeclareMethod attaches spec to m. Method declarations take precedence over type ones.
func (r *Registry) DeclareMethod(m Method, spec PolicySpec) error {
	if err := checkMethod(m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Key()] = spec
	r.registerLocked(m)
	return nil
}

// MarkRecover excludes m from type-level declarations. A declaration on m itself
// still applies.
func (r *Registry) MarkRecover(m Method) error {
	if err := checkMethod(m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recover[m.Key()] = struct{}{}
	r.registerLocked(m)
	return nil
}

// MarkRecoverType marks every method of t as a recovery method.
func (r *Registry) MarkRecoverType(t TypeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoverTypes[t] = struct{}{}
}

// RegisterMethod records that m exists on its owner, so that calls made through
// another type can be matched to it by name and parameter types.
func (r *Registry) RegisterMethod(m Method) error {
	if err := checkMethod(m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(m)
	return nil
}

func (r *Registry) registerLocked(m Method) {
	byName, ok := r.members[m.Owner]
	if !ok {
		byName = make(map[string]Method)
		r.members[m.Owner] = byName
	}
	byName[m.Signature()] = m
}

// MethodSpec returns the declaration on m.
func (r *Registry) MethodSpec(m Method) (PolicySpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.methods[m.Key()]
	return spec, ok
}

// TypeSpec returns the declaration on t.
func (r *Registry) TypeSpec(t TypeID) (PolicySpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.types[t]
	return spec, ok
}

// IsRecover reports whether m is a recovery method.
func (r *Registry) IsRecover(m Method) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.recover[m.Key()]; ok {
		return true
	}
	_, ok := r.recoverTypes[m.Owner]
	return ok
}

// FindMethod returns the method of owner with the same name and parameter types as m.
func (r *Registry) FindMethod(owner TypeID, m Method) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found, ok := r.members[owner][m.Signature()]
	return found, ok
}

// Declared reports whether t has any declaration or registered method.
func (r *Registry) Declared(t TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.types[t]; ok {
		return true
	}
	_, ok := r.members[t]
	return ok
}

func checkMethod(m Method) error {
	if m.Owner == "" || m.Name == "" {
		return &ConfigError{Field: "method", Reason: fmt.Sprintf("owner and name are required, got %q", m.String())}
	}
	return nil
}
