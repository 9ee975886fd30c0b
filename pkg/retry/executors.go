package retry

import (
	"fmt"
	"sort"
	"sync"

	"streamretry/internal/shared"
)

// Executors is a registry of named interceptors for declarations that delegate
// the whole retry behaviour by name.
type Executors struct {
	mu     sync.RWMutex
	byName map[string]Interceptor
}

// NewExecutors returns an empty registry.
func NewExecutors() *Executors {
	return &Executors{byName: make(map[string]Interceptor)}
}

// Register adds ic under name. Names are unique.
func (x *Executors) Register(name string, ic Interceptor) error {
	if name == "" || ic == nil {
		return &ConfigError{Field: "executor", Reason: "name and interceptor are required"}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byName[name]; ok {
		return &ConfigError{Field: "executor", Reason: fmt.Sprintf("%q already registered", name), Err: shared.ErrConflict}
	}
	x.byName[name] = ic
	return nil
}

// Lookup returns the interceptor registered under name.
func (x *Executors) Lookup(name string) (Interceptor, error) {
	if x == nil {
		return nil, &LookupError{Name: name}
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	ic, ok := x.byName[name]
	if !ok {
		return nil, &LookupError{Name: name}
	}
	return ic, nil
}

// Names returns the registered names in sorted order.
func (x *Executors) Names() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := make([]string, 0, len(x.byName))
	for n := range x.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
