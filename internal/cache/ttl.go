package cache

import (
	"strings"
	"sync"
	"time"
)

// TTL is a process-local cache with a fixed time-to-live per entry. Values
// go in and come out by copy; the map never hands out a reference to a
// stored entry, so callers cannot mutate cached state from outside.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry[V]
	now     func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		ttl:     ttl,
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
}

// Get returns a copy of the value for key, or ok=false if absent or expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}

	return e.value, true
}

func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Mutate applies fn to the stored value under the cache lock. Returns false
// if the entry is absent or expired. The entry keeps its original expiry.
func (c *TTL[V]) Mutate(key string, fn func(*V)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return false
	}

	fn(&e.value)
	return true
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeletePrefix drops every entry whose key starts with prefix and returns
// how many were removed.
func (c *TTL[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
}

// CleanExpired sweeps expired entries and returns how many were removed.
func (c *TTL[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
