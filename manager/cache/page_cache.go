package cache

import (
	"sync"
	"time"
)

type slot[K comparable, V any] struct {
	key        K
	value      V
	used       bool
	referenced bool
}

// PageCache is a fixed size ring of decoded pages with clock (second chance)
// eviction. Safe for concurrent use.
type PageCache[K comparable, V any] struct {
	lock sync.Mutex

	slots []slot[K, V]
	index map[K]int
	hand  int

	stats CacheStats
}

func NewPageCache[K comparable, V any](capacity int) *PageCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}

	return &PageCache[K, V]{
		slots: make([]slot[K, V], capacity),
		index: make(map[K]int, capacity),
		stats: CacheStats{Created: time.Now()},
	}
}

func (c *PageCache[K, V]) Get(key K) (result V, ok bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	idx, found := c.index[key]
	if !found {
		c.stats.Misses++
		return result, false
	}

	c.stats.Hits++
	c.slots[idx].referenced = true

	return c.slots[idx].value, true
}

func (c *PageCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if idx, found := c.index[key]; found {
		c.slots[idx].value = value
		c.slots[idx].referenced = true
		return
	}

	for {
		s := &c.slots[c.hand]

		if !s.used {
			break
		}

		if s.referenced {
			s.referenced = false
			c.hand = (c.hand + 1) % len(c.slots)
			continue
		}

		delete(c.index, s.key)
		c.stats.Evictions++
		break
	}

	c.slots[c.hand] = slot[K, V]{key: key, value: value, used: true}
	c.index[key] = c.hand
	c.hand = (c.hand + 1) % len(c.slots)
}

func (c *PageCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.index)
}

func (c *PageCache[K, V]) Capacity() int {
	return len(c.slots)
}

func (c *PageCache[K, V]) Stats() CacheStats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}
