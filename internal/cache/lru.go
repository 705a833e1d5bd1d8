// Package cache provides a TTL-bounded LRU cache and the web search result
// cache built on it.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a fixed-capacity least-recently-used cache whose entries optionally
// expire. It is safe for concurrent use; every operation holds one mutex.
type LRU[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List
}

type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

// LRUOption configures an LRU.
type LRUOption func(*lruOptions)

type lruOptions struct {
	now func() time.Time
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) LRUOption {
	return func(o *lruOptions) { o.now = now }
}

// NewLRU creates a cache holding at most capacity entries. Entries older
// than ttl are treated as absent; ttl <= 0 disables expiry. A capacity below
// 1 is raised to 1.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, opts ...LRUOption) *LRU[K, V] {
	o := lruOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key. A present entry moves to the front before
// its age is checked; an expired entry is removed and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e, ok := elem.Value.(*entry[K, V])
	if !ok {
		c.reset()
		return zero, false
	}
	c.order.MoveToFront(elem)
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		c.order.Remove(elem)
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key at the front, evicting the least recently used
// entry when over capacity.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		if e, ok := elem.Value.(*entry[K, V]); ok {
			e.value = value
			e.storedAt = now
			c.order.MoveToFront(elem)
			return
		}
		c.reset()
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, storedAt: now})

	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			if e, ok := oldest.Value.(*entry[K, V]); ok {
				delete(c.items, e.key)
			}
		}
	}
	if len(c.items) != c.order.Len() {
		c.reset()
	}
}

// Remove deletes key if present.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// reset rebuilds empty state. Callers hold c.mu.
func (c *LRU[K, V]) reset() {
	c.items = make(map[K]*list.Element)
	c.order.Init()
}
