// Package cache provides the process-wide TTL caches: a generic bounded
// key/value cache with per-entry expiry and the short-TTL "seen key" sets
// used for event and callback deduplication.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Clock abstracts the time source so expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock time source.
func SystemClock() Clock { return systemClock{} }

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded key/value cache. Every entry carries its own expiry;
// inserting beyond capacity evicts the least recently used entry.
type TTLCache[K comparable, V any] struct {
	mu         sync.Mutex
	inner      *lru.Cache[K, entry[V]]
	defaultTTL time.Duration
	clock      Clock
}

// NewTTLCache builds a cache holding at most size entries with the given
// default TTL. A non-positive size falls back to 1024.
func NewTTLCache[K comparable, V any](size int, defaultTTL time.Duration, clock Clock) (*TTLCache[K, V], error) {
	if size <= 0 {
		size = 1024
	}
	if clock == nil {
		clock = SystemClock()
	}
	inner, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{inner: inner, defaultTTL: defaultTTL, clock: clock}, nil
}

// Get returns the live value for key. Expired entries are removed on access.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	item, ok := c.inner.Get(key)
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(item.expiresAt) {
		c.inner.Remove(key)
		return zero, false
	}
	return item.value, true
}

// Set stores value under key with the default TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)})
}

// Delete removes key if present.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Contains reports whether key holds a live entry without refreshing its
// recency or TTL.
func (c *TTLCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.inner.Peek(key)
	if !ok {
		return false
	}
	if !c.clock.Now().Before(item.expiresAt) {
		c.inner.Remove(key)
		return false
	}
	return true
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Sweep evicts every entry whose expiry is at or before now and returns the
// number of removed entries.
func (c *TTLCache[K, V]) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, key := range c.inner.Keys() {
		item, ok := c.inner.Peek(key)
		if !ok {
			continue
		}
		if !now.Before(item.expiresAt) {
			c.inner.Remove(key)
			removed++
		}
	}
	return removed
}
