// Package cache provides an in-process TTL cache with LRU eviction. It backs
// both the query-expansion cache and the search-result cache; for a single
// server this beats a network round-trip to an external cache.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache is a fixed-capacity TTL+LRU cache. All methods are safe for
// concurrent use: get/set/clear run under one mutex, so recency updates and
// evictions are atomic with respect to concurrent callers.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
}

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests to control expiry.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

// Get returns the cached value if present and not expired, marking it most
// recently used. Expired entries are removed on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if c.now().Sub(ent.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}

	c.order.MoveToFront(el)
	return ent.value, true
}

// Set stores a value, refreshing its TTL and recency. When the cache is at
// capacity the least recently used entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
	}

	el := c.order.PushFront(&entry[V]{key: key, value: value, storedAt: c.now()})
	c.items[key] = el
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Stats describes the current cache occupancy.
type Stats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"maxsize"`
	TTLSeconds float64 `json:"ttl"`
}

// Stats returns the current occupancy and configuration.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.items), MaxSize: c.maxSize, TTLSeconds: c.ttl.Seconds()}
}

// Key derives a compact cache key from request parameters. The query part is
// lowercased and trimmed so trivially different spellings share an entry.
func Key(query string, parts ...string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	for _, p := range parts {
		s += "|" + p
	}
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:32]
}
