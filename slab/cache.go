// Package slab implements the fixed-size object cache the design lists as
// an external collaborator (create/alloc/free), used by vm.Subsystem for
// the two process-wide caches the original source bootstraps once
// (mem_space_cache, mem_gap_cache in mem_space.c's global_init). The
// teacher's closest analogue is mem.Physmem_t's per-CPU freelists
// (_phys_new/_phys_insert/percpu in mem/mem.go): objects recycle through
// a free list instead of round-tripping the Go allocator on every
// region/gap churn.
package slab

import "sync"

// Cache is a generic fixed-size object pool for *T. Unlike the C
// original's cache_create(name, sz, align, ctor, dtor), Go's generics
// make the size/alignment parameters unnecessary; ctor/dtor keep the
// same role of (re)initializing an object when it is recycled.
type Cache[T any] struct {
	mu    sync.Mutex
	name  string
	free  []*T
	ctor  func(*T)
	dtor  func(*T)
	count int // objects currently on loan
}

// New creates a cache of *T. Either ctor or dtor may be nil.
func New[T any](name string, ctor, dtor func(*T)) *Cache[T] {
	return &Cache[T]{name: name, ctor: ctor, dtor: dtor}
}

// Alloc returns a recycled or freshly allocated *T, running ctor on it
// first. There is no hard capacity limit: exhaustion in this subsystem
// comes from the buddy allocator and the gap tree, not from object-cache
// pressure, so Alloc never reports failure the way cache_alloc can in
// the original (which fails only when the backing page allocator is out
// of memory — modeled here by Go's own allocator, which panics rather
// than returning nil on exhaustion).
func (c *Cache[T]) Alloc() *T {
	c.mu.Lock()
	var v *T
	if n := len(c.free); n > 0 {
		v = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		v = new(T)
	}
	c.count++
	c.mu.Unlock()

	if c.ctor != nil {
		c.ctor(v)
	}
	return v
}

// Free runs dtor (if any) and returns v to the free list.
func (c *Cache[T]) Free(v *T) {
	if c.dtor != nil {
		c.dtor(v)
	}
	c.mu.Lock()
	c.count--
	c.free = append(c.free, v)
	c.mu.Unlock()
}

// Live reports the number of objects currently on loan (Alloc'd but not
// yet Freed), used by tests checking that objects are returned.
func (c *Cache[T]) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
