package channels

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket for outbound platform calls. It allows a
// burst up to capacity, then refills at rate tokens per second.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a full bucket. A non-positive rate disables
// limiting.
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return newRateLimiter(rate, capacity, time.Now)
}

func newRateLimiter(rate float64, capacity int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: now(),
		now:        now,
	}
}

// Wait blocks until a token is available or ctx ends. A nil limiter never
// blocks.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.rate <= 0 {
		return nil
	}
	for {
		wait := r.reserve()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow takes a token if one is available.
func (r *RateLimiter) Allow() bool {
	if r == nil || r.rate <= 0 {
		return true
	}
	return r.reserve() == 0
}

// reserve takes a token and returns 0, or returns how long until one is
// available.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if elapsed := now.Sub(r.lastRefill).Seconds(); elapsed > 0 {
		r.tokens = min(r.capacity, r.tokens+elapsed*r.rate)
		r.lastRefill = now
	}
	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	missing := 1 - r.tokens
	return time.Duration(missing / r.rate * float64(time.Second))
}
