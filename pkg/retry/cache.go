package retry

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// Cache memoizes resolution results per target and method. A stored nil interceptor
// records that the call passes through.
//
// Entries are not tied to the lifetime of their targets. Targets idle for longer than
// a given duration are dropped by Sweep, or explicitly with Forget; dropped entries are
// resolved again on the next call.
type Cache struct {
	targets sync.Map // target -> *targetEntry
	now     func() time.Time
}

type targetEntry struct {
	methods  sync.Map // MethodKey -> *cacheEntry
	lastUsed atomic.Int64
}

type cacheEntry struct {
	interceptor Interceptor
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// cacheable reports whether target can be used as a map key.
func cacheable(target any) bool {
	if target == nil {
		return true
	}
	return reflect.ValueOf(target).Comparable()
}

// Load returns the cached result for target and key.
func (c *Cache) Load(target any, key MethodKey) (Interceptor, bool) {
	if !cacheable(target) {
		return nil, false
	}
	v, ok := c.targets.Load(target)
	if !ok {
		return nil, false
	}
	te := v.(*targetEntry)
	te.touch(c.now())
	e, ok := te.methods.Load(key)
	if !ok {
		return nil, false
	}
	return e.(*cacheEntry).interceptor, true
}

// Store records ic for target and key unless a result is already present, and returns
// the stored result. Concurrent callers storing the same key all get the first value.
func (c *Cache) Store(target any, key MethodKey, ic Interceptor) Interceptor {
	if !cacheable(target) {
		return ic
	}
	now := c.now()
	v, _ := c.targets.LoadOrStore(target, newTargetEntry(now))
	te := v.(*targetEntry)
	te.touch(now)
	e, _ := te.methods.LoadOrStore(key, &cacheEntry{interceptor: ic})
	return e.(*cacheEntry).interceptor
}

// Forget drops every entry for target.
func (c *Cache) Forget(target any) {
	if cacheable(target) {
		c.targets.Delete(target)
	}
}

// Sweep drops targets not used for longer than idle and returns how many were dropped.
func (c *Cache) Sweep(idle time.Duration) int {
	cutoff := c.now().Add(-idle).UnixNano()
	dropped := 0
	c.targets.Range(func(k, v any) bool {
		if v.(*targetEntry).lastUsed.Load() < cutoff {
			if c.targets.CompareAndDelete(k, v) {
				dropped++
			}
		}
		return true
	})
	return dropped
}

// Stats reports the number of cached targets and method entries.
func (c *Cache) Stats() (targets, entries int) {
	c.targets.Range(func(_, v any) bool {
		targets++
		v.(*targetEntry).methods.Range(func(_, _ any) bool {
			entries++
			return true
		})
		return true
	})
	return targets, entries
}

func newTargetEntry(now time.Time) *targetEntry {
	te := &targetEntry{}
	te.lastUsed.Store(now.UnixNano())
	return te
}

func (te *targetEntry) touch(now time.Time) {
	te.lastUsed.Store(now.UnixNano())
}
