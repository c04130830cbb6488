// Package layoutcache memoizes the input layout derived from a vertex
// attribute set for each program it has been drawn with.
package layoutcache

// Cache holds one layout per program identity.
//
// The attribute set the layouts were derived from is owned by the caller:
// whenever it changes the caller must call Invalidate. Cache is not safe for
// concurrent use; it follows the single-goroutine rule of the context that
// owns it.
type Cache[P comparable, L any] struct {
	layouts map[P]L
	release func(L)

	builds  int
	version uint64
}

// New creates an empty cache. release, if non-nil, is called for every
// layout dropped by Invalidate, Forget or Close.
func New[P comparable, L any](release func(L)) *Cache[P, L] {
	return &Cache[P, L]{layouts: make(map[P]L), release: release}
}

// Get returns the layout cached for program, calling build on a miss.
func (c *Cache[P, L]) Get(program P, build func(P) (L, error)) (L, error) {
	if l, ok := c.layouts[program]; ok {
		return l, nil
	}
	l, err := build(program)
	if err != nil {
		var zero L
		return zero, err
	}
	c.layouts[program] = l
	c.builds++
	return l, nil
}

// Lookup returns the cached layout for program without building one.
func (c *Cache[P, L]) Lookup(program P) (L, bool) {
	l, ok := c.layouts[program]
	return l, ok
}

// Invalidate drops every cached layout. Called when the attribute set
// changes.
func (c *Cache[P, L]) Invalidate() {
	for p, l := range c.layouts {
		delete(c.layouts, p)
		if c.release != nil {
			c.release(l)
		}
	}
	c.version++
}

// Forget drops the layout cached for program, typically because the
// program was released.
func (c *Cache[P, L]) Forget(program P) {
	l, ok := c.layouts[program]
	if !ok {
		return
	}
	delete(c.layouts, program)
	if c.release != nil {
		c.release(l)
	}
}

// Close releases everything.
func (c *Cache[P, L]) Close() { c.Invalidate() }

// Len returns the number of cached layouts.
func (c *Cache[P, L]) Len() int { return len(c.layouts) }

// Builds returns how many times build has been called successfully.
func (c *Cache[P, L]) Builds() int { return c.builds }

// Version increments on every Invalidate. Callers holding a layout compare
// it to decide whether their binding is stale.
func (c *Cache[P, L]) Version() uint64 { return c.version }
