// Package cache provides a bounded key/value store with time-based expiry.
//
// The cache combines a size cap with a per-entry TTL:
//   - Get treats entries older than the TTL as absent (lazy expiry; stale
//     entries stay in storage until displaced by the size cap).
//   - Put inserts or overwrites and, when the store grows past its maximum
//     size, evicts the single oldest-inserted entry. Eviction follows
//     insertion order, not access order: reads never promote an entry, and
//     overwriting a key keeps its original position in the eviction queue.
//
// The FIFO bias (as opposed to LRU) decides which synthesized audio clips
// and conversation records survive under load, so callers must not
// substitute an access-ordered policy.
//
// A single instance is safe for concurrent use by many sessions: Put and
// eviction happen as one atomic step under the write lock while Gets
// proceed concurrently under the read lock.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	addedAt time.Time
}

// Cache is a bounded, TTL-expiring key/value store.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V]
	order   []K // insertion order, oldest first
	maxSize int
	ttl     time.Duration

	now func() time.Time
}

// New creates a cache holding at most maxSize entries, each readable for at
// most ttl after its last Put. maxSize must be positive; a zero or negative
// ttl disables expiry.
func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		order:   make([]K, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key. Entries past their TTL are reported absent
// even when still held in storage.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put inserts or overwrites the value for key and refreshes its timestamp.
// When the insert pushes the store past its maximum size the oldest-inserted
// entry is evicted in the same critical section. An overwrite keeps the
// key's original place in the eviction queue.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.addedAt = c.now()
		return
	}

	c.entries[key] = &entry[V]{value: value, addedAt: c.now()}
	c.order = append(c.order, key)

	if len(c.entries) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.addedAt) > c.ttl
}
