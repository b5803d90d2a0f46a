// Package clientcache provides an explicit, injectable cache for
// per-credential gateway clients. The composition root owns the instance;
// there is no process-wide singleton, so tests can create isolated caches.
package clientcache

import (
	"hash/fnv"
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	created  time.Time
	lastUsed time.Time
}

// Cache is a size- and TTL-bounded cache keyed by the FNV-1a hash of a
// credential string. Eviction is least-recently-used.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[uint64]*entry[T]
	max     int
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache holding at most maxEntries values for at most ttl each.
func New[T any](maxEntries int, ttl time.Duration) *Cache[T] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[T]{
		entries: make(map[uint64]*entry[T]),
		max:     maxEntries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrCreate returns the cached value for key, creating it with create when
// absent or expired. Creation errors are returned and nothing is cached.
func (c *Cache[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	h := hashKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[h]; ok {
		if c.ttl <= 0 || now.Sub(e.created) < c.ttl {
			e.lastUsed = now
			return e.value, nil
		}
		delete(c.entries, h)
	}

	value, err := create()
	if err != nil {
		var zero T
		return zero, err
	}

	if len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[h] = &entry[T]{value: value, created: now, lastUsed: now}
	return value, nil
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) evictOldest() {
	var oldestKey uint64
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastUsed.Before(oldest) {
			oldestKey = k
			oldest = e.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}
