// file: internal/cache/ttl.go
// version: 1.0.0
// guid: c7e3a1f9-4b26-4d80-9e5a-2b8f6d0c4e71

package cache

import (
	"sync"
	"time"
)

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTL is a small generic cache with per-entry expiry, used for records that
// go stale on their own, such as podcast feeds. Safe for concurrent use.
type TTL[T any] struct {
	mu    sync.RWMutex
	items map[string]ttlEntry[T]
	ttl   time.Duration
	now   func() time.Time
}

// NewTTL creates a cache whose entries expire after ttl.
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		items: make(map[string]ttlEntry[T]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a live value.
func (c *TTL[T]) Get(key string) (T, bool) {
	v, fresh, ok := c.Peek(key)
	if !ok || !fresh {
		var zero T
		return zero, false
	}
	return v, true
}

// Peek returns a value even when expired. fresh reports whether it is still
// within its TTL.
func (c *TTL[T]) Peek(key string) (value T, fresh bool, ok bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return value, false, false
	}
	return e.value, c.now().Before(e.expiresAt), true
}

// Set stores value with the default TTL.
func (c *TTL[T]) Set(key string, value T) {
	c.mu.Lock()
	c.items[key] = ttlEntry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes a single key.
func (c *TTL[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries.
func (c *TTL[T]) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[string]ttlEntry[T])
	c.mu.Unlock()
}
