package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestDedupeCacheSeen(t *testing.T) {
	clk := &clock{t: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)}
	c := NewDedupeCache(DedupeOptions{TTL: time.Minute, Now: clk.now})

	if c.Seen("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !c.Seen("a") {
		t.Fatal("second sighting within TTL not reported")
	}
	clk.advance(2 * time.Minute)
	if c.Seen("a") {
		t.Fatal("sighting after TTL reported as duplicate")
	}
}

func TestDedupeCacheSeenAnyKey(t *testing.T) {
	c := NewDedupeCache(DedupeOptions{TTL: time.Minute})
	if c.Seen("id:1", "hash:x") {
		t.Fatal("fresh keys reported as duplicate")
	}
	if !c.Seen("id:2", "hash:x") {
		t.Error("shared hash key should mark a duplicate")
	}
	if !c.Seen("id:1", "") {
		t.Error("known id should mark a duplicate")
	}
	if c.Seen("", "") {
		t.Error("empty keys are never duplicates")
	}
}

func TestDedupeCacheEvictsOldest(t *testing.T) {
	clk := &clock{t: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)}
	c := NewDedupeCache(DedupeOptions{TTL: time.Hour, MaxSize: 3, Now: clk.now})
	for i := 0; i < 5; i++ {
		c.Seen(fmt.Sprintf("k%d", i))
		clk.advance(time.Second)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if c.Seen("k0") {
		t.Error("k0 should have been evicted")
	}
	c.Forget("k4")
	if c.Seen("k4") {
		t.Error("forgotten key reported as duplicate")
	}
}

func TestDedupeCacheConcurrent(t *testing.T) {
	c := NewDedupeCache(DedupeOptions{TTL: time.Minute})
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fresh != 1 {
		t.Errorf("fresh sightings = %d, want 1", fresh)
	}
}
