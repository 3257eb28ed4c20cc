// Package snapshot holds the latest published value of a type.
//
// A Cache starts empty. Store replaces the whole value with one atomic
// pointer swap, so Load never blocks and never observes a value assembled
// from two different Stores.
package snapshot

import "sync/atomic"

type Cache[T any] struct {
	p atomic.Pointer[T]
}

// New returns an empty cache.
func New[T any]() *Cache[T] { return &Cache[T]{} }

// Load returns a copy of the latest value and true, or the zero value and
// false if nothing has been stored yet.
func (c *Cache[T]) Load() (T, bool) {
	p := c.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Store publishes v, replacing any previous value. v is copied; later changes
// to the caller's variable are not visible to readers.
func (c *Cache[T]) Store(v T) {
	c.p.Store(&v)
}
