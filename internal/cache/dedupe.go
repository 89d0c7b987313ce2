// Package cache holds small in-process caches shared by the gateway.
package cache

import (
	"sync"
	"time"
)

// DedupeCache remembers keys for a TTL. It is safe for concurrent use.
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// DedupeOptions configures a DedupeCache.
type DedupeOptions struct {
	// TTL is how long a key counts as seen. Default: 1m
	TTL time.Duration
	// MaxSize bounds the number of remembered keys; the oldest are evicted
	// first. Default: 10000
	MaxSize int
	// Now overrides time.Now.
	Now func() time.Time
}

// NewDedupeCache creates a cache.
func NewDedupeCache(opts DedupeOptions) *DedupeCache {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DedupeCache{
		seen:    make(map[string]time.Time),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
	}
}

// Seen reports whether any key was recorded within the TTL, then records
// all of them. Empty keys are ignored.
func (c *DedupeCache) Seen(keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dup := false
	for _, key := range keys {
		if key == "" {
			continue
		}
		if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
			dup = true
		}
		c.seen[key] = now
	}
	c.prune(now)
	return dup
}

// Forget removes a key.
func (c *DedupeCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
}

// Len returns the number of remembered keys.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *DedupeCache) prune(now time.Time) {
	for key, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, key)
		}
	}
	for len(c.seen) > c.maxSize {
		var oldestKey string
		var oldest time.Time
		for key, at := range c.seen {
			if oldestKey == "" || at.Before(oldest) {
				oldestKey, oldest = key, at
			}
		}
		delete(c.seen, oldestKey)
	}
}
