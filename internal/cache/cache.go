// Package cache provides a bounded in-memory slug cache whose entries expire
// no later than the URL they hold.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	defaultTTL        = 5 * time.Minute
	defaultMaxEntries = 1000
)

type entry struct {
	url      *entity.URL
	ttl      time.Duration
	deadline time.Time
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Size       int
	MaxEntries int
	DefaultTTL time.Duration
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}

type Option func(*SlugCache)

// WithDefaultTTL sets the lifetime of entries whose URL does not expire sooner.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *SlugCache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithMaxEntries sets the capacity after which least recently used entries are evicted.
func WithMaxEntries(n int) Option {
	return func(c *SlugCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *SlugCache) {
		c.now = now
	}
}

// SlugCache maps slugs to URL snapshots. It is safe for concurrent use.
type SlugCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *entry]

	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	hits, misses, evictions uint64
}

func New(opts ...Option) (*SlugCache, error) {
	const op = "cache.New"

	c := &SlugCache{
		defaultTTL: defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	lru, err := simplelru.NewLRU[string, *entry](c.maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create lru: %w", op, err)
	}
	c.lru = lru

	return c, nil
}

// Get returns a copy of the URL cached under slug. A hit marks the entry as
// recently used and extends its deadline by its TTL, but never past the URL
// expiration date.
func (c *SlugCache) Get(slug string) (*entity.URL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(slug)
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.now()
	if !now.Before(e.deadline) {
		c.lru.Remove(slug)
		c.misses++
		return nil, false
	}

	deadline := now.Add(e.ttl)
	if exp := e.url.ExpirationDate; exp != nil && exp.Before(deadline) {
		deadline = *exp
	}
	e.deadline = deadline

	c.hits++

	return e.url.Clone(), true
}

// Put stores a copy of url under slug. The entry lives for the default TTL or
// until the URL expires, whichever comes first. A URL that is already expired
// replaces nothing and leaves slug uncached.
func (c *SlugCache) Put(slug string, url *entity.URL) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ttl := c.ttl(url, now)

	if ttl <= 0 {
		c.lru.Remove(slug)
		return
	}

	evicted := c.lru.Add(slug, &entry{
		url:      url.Clone(),
		ttl:      ttl,
		deadline: now.Add(ttl),
	})
	if evicted {
		c.evictions++
	}
}

// Invalidate removes slug from the cache.
func (c *SlugCache) Invalidate(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(slug)
}

func (c *SlugCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:       c.lru.Len(),
		MaxEntries: c.maxEntries,
		DefaultTTL: c.defaultTTL,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

func (c *SlugCache) ttl(url *entity.URL, now time.Time) time.Duration {
	if url.ExpirationDate == nil {
		return c.defaultTTL
	}

	return min(c.defaultTTL, url.ExpirationDate.Sub(now))
}
