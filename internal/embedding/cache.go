package embedding

import (
	"strings"
	"sync"
	"time"
)

// Default cache configuration values.
const (
	DefaultCacheMaxSize = 1000
	DefaultCacheTTL     = 1 * time.Hour
)

// cacheEntry stores a cached embedding with its timestamp.
type cacheEntry struct {
	vector    []float32
	timestamp time.Time
	key       string
}

// vectorCache is an LRU cache for embeddings with TTL support. Remote
// backends share it so repeated prompts do not pay for repeated API calls.
type vectorCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []*cacheEntry // LRU order: oldest at front, newest at back
	maxSize int
	ttl     time.Duration
	hits    int64
	misses  int64
}

// CacheStats contains embedding cache statistics.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

func newVectorCache(maxSize int, ttl time.Duration) *vectorCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &vectorCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]*cacheEntry, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// normalizeKey creates a normalized cache key from text.
func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// get retrieves an embedding from the cache. Returns nil if not found or
// expired.
func (c *vectorCache) get(text string) []float32 {
	key := normalizeKey(text)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil
	}

	if time.Since(entry.timestamp) > c.ttl {
		c.mu.Lock()
		c.misses++
		c.removeEntryLocked(key)
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.hits++
	c.moveToBackLocked(entry)
	c.mu.Unlock()

	return entry.vector
}

// put stores an embedding in the cache.
func (c *vectorCache) put(text string, vector []float32) {
	key := normalizeKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		existing.vector = vector
		existing.timestamp = time.Now()
		c.moveToBackLocked(existing)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.removeEntryLocked(oldest.key)
	}

	entry := &cacheEntry{
		vector:    vector,
		timestamp: time.Now(),
		key:       key,
	}
	c.entries[key] = entry
	c.order = append(c.order, entry)
}

// removeEntryLocked removes an entry. Must be called with lock held.
func (c *vectorCache) removeEntryLocked(key string) {
	entry, exists := c.entries[key]
	if !exists {
		return
	}

	delete(c.entries, key)

	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// moveToBackLocked moves an entry to the back of the LRU list. Must be
// called with lock held.
func (c *vectorCache) moveToBackLocked(entry *cacheEntry) {
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, entry)
}

// stats returns current cache statistics.
func (c *vectorCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100.0
	}

	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		HitRate: hitRate,
	}
}
