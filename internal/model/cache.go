package model

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Cache holds loaded artifacts between requests. The optimizer and
// surface paths resolve adapters through it so repeated calls against the
// same dataset and family skip the blob round trip.
type Cache interface {
	Get(key string) (*Artifact, bool)
	Put(key string, a *Artifact)
}

// CacheKey builds the cache key for a dataset and family pair.
func CacheKey(datasetID, family string) string {
	return datasetID + "_" + family
}

type cacheEntry struct {
	key      string
	artifact *Artifact
	addedAt  time.Time
}

// LRUCache is a bounded artifact cache with TTL expiry. Least recently
// used entries are evicted once the size cap is reached.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	ll      *list.List
	items   map[string]*list.Element
	metrics MetricsInterface
	now     func() time.Time
}

// NewLRUCache creates an artifact cache. A zero ttl disables expiry.
// The metrics sink may be nil.
func NewLRUCache(maxSize int, ttl time.Duration, metrics MetricsInterface) *LRUCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRUCache{
		maxSize: maxSize,
		ttl:     ttl,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		metrics: metrics,
		now:     time.Now,
	}
}

// Get returns the cached artifact for key, refreshing its recency.
// Expired entries are dropped and reported as misses.
func (c *LRUCache) Get(key string) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.CacheMissesInc()
		}
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.addedAt) > c.ttl {
		c.removeLocked(elem)
		if c.metrics != nil {
			c.metrics.CacheMissesInc()
		}
		return nil, false
	}

	c.ll.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.CacheHitsInc()
	}
	return entry.artifact, true
}

// Put stores the artifact under key, evicting the least recently used
// entries past the size cap.
func (c *LRUCache) Put(key string, a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.artifact = a
		entry.addedAt = c.now()
		c.ll.MoveToFront(elem)
		return
	}

	elem := c.ll.PushFront(&cacheEntry{key: key, artifact: a, addedAt: c.now()})
	c.items[key] = elem

	for c.ll.Len() > c.maxSize {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		if c.metrics != nil {
			c.metrics.CacheEvictionsInc()
		}
	}
	if c.metrics != nil {
		c.metrics.CacheEntriesSet(float64(c.ll.Len()))
	}
}

// InvalidateDataset drops every cached family of a dataset. Called when a
// dataset is re-registered or retrained so stale adapters never serve.
func (c *LRUCache) InvalidateDataset(datasetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := datasetID + "_"
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
		}
	}
	if c.metrics != nil {
		c.metrics.CacheEntriesSet(float64(c.ll.Len()))
	}
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRUCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.ll.Remove(elem)
}
