package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("cache: not found")

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL map. Expired entries are dropped lazily on read and in bulk by Sweep.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	now     func() time.Time
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

func (c *Cache[V]) Get(_ context.Context, key string) (V, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, ErrNotFound
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the key.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, ErrNotFound
	}
	return entry.value, nil
}

func (c *Cache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// SetIfAbsent stores value unless a live entry already exists. Reports whether it stored.
func (c *Cache[V]) SetIfAbsent(ctx context.Context, key string, value V, ttl time.Duration) bool {
	return c.SetUnless(ctx, key, value, ttl, func(V) bool { return true })
}

// SetUnless stores value unless a live entry exists for which keep returns true.
// Reports whether it stored.
func (c *Cache[V]) SetUnless(_ context.Context, key string, value V, ttl time.Duration, keep func(cur V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && !c.now().After(cur.expiresAt) && keep(cur.value) {
		return false
	}
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(ttl)}
	return true
}

func (c *Cache[V]) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// InvalidateIf removes key when its live value matches.
func (c *Cache[V]) InvalidateIf(_ context.Context, key string, match func(V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[key]
	if !ok || c.now().After(cur.expiresAt) || !match(cur.value) {
		return false
	}
	delete(c.entries, key)
	return true
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (c *Cache[V]) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
