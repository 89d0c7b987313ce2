package websearch

import (
	"sync"
	"time"
)

// maxCacheSize limits the number of cached queries.
const maxCacheSize = 1000

type cacheEntry struct {
	results   []SearchResult
	expiresAt time.Time
}

// resultCache is a small TTL cache keyed by query. It holds no per-user state.
type resultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

func (c *resultCache) get(key string) ([]SearchResult, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.results, true
}

func (c *resultCache) put(key string, results []SearchResult) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	// Evict the entry closest to expiry until there is room.
	for len(c.entries) >= maxCacheSize {
		var oldestKey string
		var oldest time.Time
		for k, v := range c.entries {
			if oldestKey == "" || v.expiresAt.Before(oldest) {
				oldestKey, oldest = k, v.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = cacheEntry{results: results, expiresAt: now.Add(c.ttl)}
}
