package model

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockModelMetrics implements MetricsInterface for testing
type mockModelMetrics struct {
	mu           sync.Mutex
	adapterCalls int
	adapterFails int
	hits         int
	misses       int
	evictions    int
	entries      float64
	trainRuns    map[string]int
	trainFails   int
	durations    int
}

func newMockModelMetrics() *mockModelMetrics {
	return &mockModelMetrics{trainRuns: make(map[string]int)}
}

func (m *mockModelMetrics) AdapterCallsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapterCalls++
}

func (m *mockModelMetrics) AdapterFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapterFails++
}

func (m *mockModelMetrics) CacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *mockModelMetrics) CacheMissesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *mockModelMetrics) CacheEvictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions++
}

func (m *mockModelMetrics) CacheEntriesSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = v
}

func (m *mockModelMetrics) TrainRunInc(family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainRuns[family]++
}

func (m *mockModelMetrics) TrainDurationObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *mockModelMetrics) TrainFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainFails++
}

func testArtifact(id string) *Artifact {
	return &Artifact{ID: id, Family: "baseline", Baseline: &BaselineHead{MeanPrice: 1000, SoldLogit: 0}}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("ds-1", "ridge"); got != "ds-1_ridge" {
		t.Errorf("Expected ds-1_ridge, got %q", got)
	}
}

func TestLRUCache_PutGet(t *testing.T) {
	metrics := newMockModelMetrics()
	cache := NewLRUCache(4, time.Minute, metrics)

	if _, ok := cache.Get("k1"); ok {
		t.Error("Expected miss on empty cache")
	}

	a := testArtifact("m1")
	cache.Put("k1", a)

	got, ok := cache.Get("k1")
	if !ok {
		t.Fatal("Expected hit after put")
	}
	if got.ID != "m1" {
		t.Errorf("Expected artifact m1, got %q", got.ID)
	}

	if metrics.hits != 1 || metrics.misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", metrics.hits, metrics.misses)
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(4, time.Minute, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("k1", testArtifact("m1"))

	now = now.Add(30 * time.Second)
	if _, ok := cache.Get("k1"); !ok {
		t.Error("Expected hit before TTL")
	}

	now = now.Add(45 * time.Second)
	if _, ok := cache.Get("k1"); ok {
		t.Error("Expected miss after TTL")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected expired entry removed, len=%d", cache.Len())
	}
}

func TestLRUCache_ZeroTTLNeverExpires(t *testing.T) {
	cache := NewLRUCache(4, 0, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("k1", testArtifact("m1"))
	now = now.Add(1000 * time.Hour)
	if _, ok := cache.Get("k1"); !ok {
		t.Error("Expected entry to survive with zero TTL")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	metrics := newMockModelMetrics()
	cache := NewLRUCache(2, 0, metrics)

	cache.Put("k1", testArtifact("m1"))
	cache.Put("k2", testArtifact("m2"))

	// Touch k1 so k2 becomes the eviction candidate.
	if _, ok := cache.Get("k1"); !ok {
		t.Fatal("Expected hit on k1")
	}

	cache.Put("k3", testArtifact("m3"))

	if _, ok := cache.Get("k2"); ok {
		t.Error("Expected k2 evicted")
	}
	if _, ok := cache.Get("k1"); !ok {
		t.Error("Expected k1 retained")
	}
	if _, ok := cache.Get("k3"); !ok {
		t.Error("Expected k3 retained")
	}
	if metrics.evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", metrics.evictions)
	}
}

func TestLRUCache_PutExistingUpdates(t *testing.T) {
	cache := NewLRUCache(2, 0, nil)

	cache.Put("k1", testArtifact("m1"))
	cache.Put("k1", testArtifact("m1b"))

	if cache.Len() != 1 {
		t.Errorf("Expected single entry, got %d", cache.Len())
	}
	got, ok := cache.Get("k1")
	if !ok || got.ID != "m1b" {
		t.Errorf("Expected updated artifact m1b, got %+v", got)
	}
}

func TestLRUCache_InvalidateDataset(t *testing.T) {
	cache := NewLRUCache(8, 0, nil)

	cache.Put(CacheKey("ds-1", "ridge"), testArtifact("m1"))
	cache.Put(CacheKey("ds-1", "sgd"), testArtifact("m2"))
	cache.Put(CacheKey("ds-2", "ridge"), testArtifact("m3"))

	cache.InvalidateDataset("ds-1")

	if _, ok := cache.Get(CacheKey("ds-1", "ridge")); ok {
		t.Error("Expected ds-1 ridge invalidated")
	}
	if _, ok := cache.Get(CacheKey("ds-1", "sgd")); ok {
		t.Error("Expected ds-1 sgd invalidated")
	}
	if _, ok := cache.Get(CacheKey("ds-2", "ridge")); !ok {
		t.Error("Expected ds-2 untouched")
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewLRUCache(16, time.Minute, newMockModelMetrics())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := CacheKey(fmt.Sprintf("ds-%d", i%20), "ridge")
				cache.Put(key, testArtifact(key))
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if cache.Len() > 16 {
		t.Errorf("Cache exceeded max size: %d", cache.Len())
	}
}
