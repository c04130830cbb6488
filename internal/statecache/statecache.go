// Package statecache deduplicates immutable pipeline state objects.
//
// Descriptions are used directly as map keys, so two descriptions with the
// same field values resolve to the same cached object regardless of how or
// in which order they were constructed. Entries are never evicted: the set of
// distinct descriptions an application builds is small and bounded by its
// source code.
package statecache

import (
	"sync"
	"sync/atomic"
)

// Cache maps a comparable description to the object created for it.
//
// Cache is safe for concurrent use. It uses an RWMutex with double-check
// locking so lookups on the hot path only take the read lock.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// GetOrCreate returns the object cached for key, calling create on a miss.
// A failed create leaves the cache unchanged and returns the error.
//
// create runs with the write lock held and must not call back into c.
func (c *Cache[K, V]) GetOrCreate(key K, create func(K) (V, error)) (V, error) {
	c.mu.RLock()
	if v, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return v, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[key]; ok {
		c.hits.Add(1)
		return v, nil
	}

	v, err := create(key)
	if err != nil {
		var zero V
		return zero, err
	}
	// The key is stored by value, which is the copy of the description.
	c.entries[key] = v
	c.misses.Add(1)
	return v, nil
}

// Get returns the cached object for key without creating one.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of cached objects.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Range calls fn for every cached entry until fn returns false.
// The cache must not be modified from fn.
func (c *Cache[K, V]) Range(fn func(K, V) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Drain removes every entry and returns the removed values so the caller
// can release them. Used when the owning device goes away.
func (c *Cache[K, V]) Drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]V, 0, len(c.entries))
	for k, v := range c.entries {
		out = append(out, v)
		delete(c.entries, k)
	}
	return out
}
