package orbitapi

import (
	"context"
	"sync"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
)

// CachedFetcher wraps a Fetcher with an in-memory LRU cache keyed by the
// orbital parameters. Propagation is deterministic, so entries never expire.
type CachedFetcher struct {
	inner   Fetcher
	cache   *lruCache[domain.OrbitTrajectory]
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, maxEntries int, metrics *observability.Metrics) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		cache:   newLRUCache[domain.OrbitTrajectory](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, params domain.OrbitalParameters) (domain.OrbitTrajectory, error) {
	key := params.CacheKey()
	if traj, ok := c.cache.get(key); ok {
		c.metrics.OrbitCache.WithLabelValues("hit").Inc()
		return traj, nil
	}
	c.metrics.OrbitCache.WithLabelValues("miss").Inc()

	traj, err := c.inner.Fetch(ctx, params)
	if err != nil {
		return traj, err
	}
	// Empty results are not cached so a provider hiccup can be retried.
	if traj.Len() > 0 {
		c.cache.put(key, traj)
	}
	return traj, nil
}

// Len returns the number of cached trajectories.
func (c *CachedFetcher) Len() int {
	return c.cache.len()
}

// lruCache is a small thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
