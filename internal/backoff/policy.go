// Package backoff provides exponential backoff with jitter for retrying
// calls that cross the network: oracle requests and channel deliveries.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy defines the parameters for exponential backoff calculation.
type BackoffPolicy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied to each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	Jitter float64
}

// ComputeBackoff calculates the backoff duration for a given attempt number.
// Attempt numbers start at 1.
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeBackoffWithRand is ComputeBackoff with a caller supplied random
// value in [0.0, 1.0). The result is min(MaxMs, base + base*Jitter*r) where
// base = InitialMs * Factor^(attempt-1).
func ComputeBackoffWithRand(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	total := math.Min(policy.MaxMs, base+base*policy.Jitter*randomValue)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DefaultPolicy returns the policy used for oracle calls.
// Initial: 500ms, Max: 10s, Factor: 2, Jitter: 10%
func DefaultPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 500,
		MaxMs:     10000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// DeliveryPolicy returns the policy used for outbound channel messages.
// Initial: 250ms, Max: 5s, Factor: 2, Jitter: 20%
func DeliveryPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 250,
		MaxMs:     5000,
		Factor:    2,
		Jitter:    0.2,
	}
}
