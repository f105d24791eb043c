package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCapacity bounds every cache built without an explicit capacity.
const DefaultCapacity = 500

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// FIFO is a bounded key/value store whose entries expire after a TTL.
//
// When full, inserting a new key evicts the oldest-inserted key. Reads and
// overwrites never change an entry's position, so a hot key inserted long ago
// is still the first to go. Expired entries are removed lazily on Get.
type FIFO[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[K]*list.Element
	now      func() time.Time
}

// NewFIFO creates a cache holding at most capacity entries.
func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *FIFO[K, V]) WithClock(now func() time.Time) *FIFO[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Put stores value under key until ttl elapses.
func (c *FIFO[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldestLocked()
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// Get returns the value for key if it is present and not expired.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(elem)
		return zero, false
	}
	return e.value, true
}

// Delete removes key if present.
func (c *FIFO[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// DeleteFunc removes every key for which match returns true.
func (c *FIFO[K, V]) DeleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if match(key) {
			c.removeLocked(elem)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident entries, expired or not.
func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear drops every entry.
func (c *FIFO[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
}

func (c *FIFO[K, V]) evictOldestLocked() {
	if oldest := c.order.Front(); oldest != nil {
		c.removeLocked(oldest)
	}
}

func (c *FIFO[K, V]) removeLocked(elem *list.Element) {
	e := c.order.Remove(elem).(*entry[K, V])
	delete(c.items, e.key)
}
