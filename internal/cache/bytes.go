// Package cache holds the two in-memory caches: downloaded payloads bounded by
// bytes, and search result pages bounded by age and entry count.
package cache

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// ByteCache is a byte-budgeted LRU cache of downloaded payloads keyed by source
// URL. It is safe for concurrent use.
type ByteCache struct {
	mu      sync.Mutex
	budget  int64
	maxItem int64
	size    int64
	lru     *simplelru.LRU

	hits   atomic.Int64
	misses atomic.Int64
}

// Record is a cached payload.
type Record struct {
	URL        string
	Data       []byte
	Size       int64
	LastAccess time.Time
}

// ByteOption configures a ByteCache.
type ByteOption func(*ByteCache)

// WithMaxItemBytes overrides the admission ceiling, which defaults to half
// the budget. Values above the budget are clamped to it.
func WithMaxItemBytes(n int64) ByteOption {
	return func(c *ByteCache) {
		if n > 0 {
			c.maxItem = n
		}
	}
}

// NewByteCache creates a cache holding at most budget bytes.
func NewByteCache(budget int64, opts ...ByteOption) *ByteCache {
	c := &ByteCache{
		budget:  budget,
		maxItem: budget / 2,
	}
	// Entry count is unbounded; only bytes are budgeted.
	c.lru, _ = simplelru.NewLRU(math.MaxInt32, c.onEvict)
	for _, opt := range opts {
		opt(c)
	}
	if c.maxItem > c.budget {
		c.maxItem = c.budget
	}
	return c
}

// onEvict runs under c.mu for every entry leaving the LRU.
func (c *ByteCache) onEvict(_, value interface{}) {
	c.size -= value.(*Record).Size
}

// Get returns the payload for url and marks it most recently used.
// The returned slice must be treated as read-only.
func (c *ByteCache) Get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(url); ok {
		c.hits.Add(1)
		rec := v.(*Record)
		rec.LastAccess = time.Now()
		return rec.Data, true
	}
	c.misses.Add(1)
	return nil, false
}

// contains reports presence without touching recency or stats.
func (c *ByteCache) contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(url)
}

// Set stores data for url, evicting least recently used entries until it
// fits. Payloads larger than the admission ceiling are silently rejected and
// leave the cache untouched. It reports whether data was admitted.
func (c *ByteCache) Set(url string, data []byte) bool {
	itemSize := int64(len(data))
	if itemSize > c.maxItem {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(url)
	for c.size+itemSize > c.budget {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}

	c.lru.Add(url, &Record{URL: url, Data: data, Size: itemSize, LastAccess: time.Now()})
	c.size += itemSize
	return true
}

// Clear empties the cache and resets statistics.
func (c *ByteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.size = 0
	c.hits.Store(0)
	c.misses.Store(0)
}

// Size returns the bytes currently held.
func (c *ByteCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries.
func (c *ByteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// keys returns cached URLs from most to least recently used.
func (c *ByteCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldest := c.lru.Keys()
	keys := make([]string, len(oldest))
	for i, k := range oldest {
		keys[len(oldest)-1-i] = k.(string)
	}
	return keys
}

// ByteStats is a snapshot of cache counters.
type ByteStats struct {
	Bytes   int64
	Budget  int64
	Entries int
	Hits    int64
	Misses  int64
}

// HitRate returns hits/(hits+misses), zero when nothing was looked up.
func (s ByteStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *ByteCache) Stats() ByteStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ByteStats{
		Bytes:   c.size,
		Budget:  c.budget,
		Entries: c.lru.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
