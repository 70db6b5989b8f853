// Package barrelcache implements the bounded in-process cache of loaded
// barrel files sitting in front of the query path's cold-storage reads. A
// single-flight group collapses concurrent cold misses for the same barrel
// into one disk read.
package barrelcache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/pkg/metrics"
)

// evictThreshold is the bulk-eviction trigger: once the cache holds this
// many barrels, it is cleared entirely rather than evicted incrementally,
// matching the LRU-style bulk-eviction policy.
const evictThreshold = 30

// Cache is a bounded, thread-safe cache of loaded barrel postings maps.
type Cache struct {
	barrels *invertedindex.Barrels
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[int]invertedindex.PostingsMap

	group singleflight.Group
}

// New returns a Cache backed by barrels. m may be nil to disable
// instrumentation.
func New(barrels *invertedindex.Barrels, m *metrics.Metrics) *Cache {
	return &Cache{
		barrels: barrels,
		metrics: m,
		entries: make(map[int]invertedindex.PostingsMap),
	}
}

// Get returns the postings map for barrel k, loading and caching it from
// disk on a cold miss. Concurrent misses for the same barrel share one
// disk read.
func (c *Cache) Get(k int) (invertedindex.PostingsMap, error) {
	c.mu.RLock()
	pm, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return pm, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("barrel-%d", k), func() (interface{}, error) {
		c.mu.RLock()
		if pm, ok := c.entries[k]; ok {
			c.mu.RUnlock()
			return pm, nil
		}
		c.mu.RUnlock()

		loaded, err := c.barrels.LoadBarrel(k)
		if err != nil {
			return nil, err
		}
		c.put(k, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading barrel %d: %w", k, err)
	}
	return v.(invertedindex.PostingsMap), nil
}

func (c *Cache) put(k int, pm invertedindex.PostingsMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= evictThreshold {
		c.entries = make(map[int]invertedindex.PostingsMap)
		if c.metrics != nil {
			c.metrics.BarrelCacheEvictionsTotal.Inc()
		}
	}
	c.entries[k] = pm
	if c.metrics != nil {
		c.metrics.BarrelCacheSize.Set(float64(len(c.entries)))
	}
}

// Invalidate drops every cached barrel, forcing the next Get to reload from
// disk, used after a delta merge rewrites barrel files.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]invertedindex.PostingsMap)
	if c.metrics != nil {
		c.metrics.BarrelCacheSize.Set(0)
	}
}

// Size returns the number of barrels currently cached.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
