// Package cache provides a bounded in-memory TTL cache for analysis
// reports, so repeated report requests over an unchanged sample window
// skip the recomputation.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/metrics"
)

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	EntryCount int   `json:"entry_count"`
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// Cache is a size-bounded TTL cache with LRU eviction. Safe for
// concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	stats      Stats
}

// New creates a cache holding at most maxEntries values, each expiring
// after defaultTTL.
func New(maxEntries int, defaultTTL time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 64
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		entries:    map[string]*list.Element{},
		order:      list.New(),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(el)
		c.stats.Misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	metrics.CacheHits.Inc()
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: time.Now().Add(ttl)})
	c.entries[key] = el

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.stats.Evictions++
	}
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*list.Element{}
	c.order.Init()
}

// EvictExpired removes every expired entry and returns how many were
// dropped. Callers run it periodically; Get also evicts lazily.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// GetStats returns a snapshot of the counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.EntryCount = len(c.entries)
	return s
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
}
