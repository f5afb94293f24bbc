package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// Page is a resolved search result page. It is immutable once stored.
type Page struct {
	Keyword   string
	Page      int
	URLs      []string
	CreatedAt time.Time
}

type pageKey struct {
	keyword string
	page    int
}

// SearchCache is a TTL plus LRU cache of resolved URL lists keyed by
// (keyword, page). It knows nothing about the network. It is safe for
// concurrent use.
type SearchCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU
	ttl time.Duration
	now func() time.Time
}

// SearchOption configures a SearchCache.
type SearchOption func(*SearchCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SearchOption {
	return func(c *SearchCache) { c.now = now }
}

// NewSearchCache creates a cache of at most maxEntries pages, each valid for ttl.
func NewSearchCache(ttl time.Duration, maxEntries int, opts ...SearchOption) (*SearchCache, error) {
	l, err := simplelru.NewLRU(maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search cache: %w", err)
	}
	c := &SearchCache{lru: l, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the URLs stored for (keyword, page) if younger than the TTL.
// A hit refreshes recency; an expired entry is dropped.
func (c *SearchCache) Get(keyword string, page int) ([]string, bool) {
	key := pageKey{keyword, page}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(key)
	if !ok {
		return nil, false
	}
	if c.expired(v.(*Page)) {
		c.lru.Remove(key)
		return nil, false
	}
	c.lru.Get(key)
	return v.(*Page).URLs, true
}

// Set inserts or overwrites (keyword, page). When the cache is full the least
// recently used entry is evicted.
func (c *SearchCache) Set(keyword string, page int, urls []string) {
	stored := make([]string, len(urls))
	copy(stored, urls)
	p := &Page{
		Keyword:   keyword,
		Page:      page,
		URLs:      stored,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(pageKey{keyword, page}, p)
}

// contains reports whether a live entry exists without refreshing recency.
func (c *SearchCache) contains(keyword string, page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(pageKey{keyword, page})
	return ok && !c.expired(v.(*Page))
}

func (c *SearchCache) expired(p *Page) bool {
	return c.now().Sub(p.CreatedAt) >= c.ttl
}

func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
