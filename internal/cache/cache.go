// Package cache provides the bounded TTL + LRU result cache shared by all
// concurrently running flow executions.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/avensk/floe/pkg/api"
)

const (
	// DefaultCapacity bounds the cache when no capacity is configured.
	DefaultCapacity = 100

	// DefaultTTL is the per-entry time-to-live when none is configured.
	DefaultTTL = 5 * time.Minute
)

type entry struct {
	key         string
	value       *api.FlowResult
	insertedAt  time.Time
	accessCount int64
	size        int64
}

// Cache maps result keys to prior FlowResults with a hard capacity bound,
// absolute per-entry expiry, and least-recently-used eviction.
//
// All methods are safe for concurrent use: multiple engine executions share
// one Cache instance and may Get/Set in parallel.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	hits     int64
	misses   int64
	memory   int64

	now    func() time.Time
	sizeOf func(any) int64
}

// New creates a Cache with the given capacity and TTL. Non-positive values
// fall back to the defaults.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
		sizeOf:   api.EstimateSize,
	}
}

// SetClock overrides the cache's time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetSizer overrides the memory-estimation strategy used by Stats.
func (c *Cache) SetSizer(sizeOf func(any) int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizeOf = sizeOf
}

// Get returns the cached result for key, if present and unexpired. Expired
// entries are removed on access and reported as misses. A hit marks the
// entry as most-recently-used.
func (c *Cache) Get(key string) (*api.FlowResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	e.accessCount++
	c.hits++
	return e.value, true
}

// Set inserts or replaces the result for key. At capacity, the
// least-recently-used entry is evicted first.
func (c *Cache) Set(key string, value *api.FlowResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		c.memory += c.sizeOf(value) - e.size
		e.value = value
		e.insertedAt = c.now()
		e.size = c.sizeOf(value)
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	e := &entry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
		size:       c.sizeOf(value),
	}
	c.entries[key] = c.order.PushFront(e)
	c.memory += e.size
}

// Delete removes the entry for key, if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops all entries. Hit/miss counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.memory = 0
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() api.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return api.CacheStats{
		Size:        len(c.entries),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		MemoryBytes: c.memory,
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
	c.memory -= e.size
}
