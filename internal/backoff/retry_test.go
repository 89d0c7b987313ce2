package backoff

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary error")

var fastPolicy = BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2, Jitter: 0}

func TestComputeBackoffWithRand(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0.5}
	tests := []struct {
		name    string
		attempt int
		random  float64
		want    time.Duration
	}{
		{"first attempt no jitter", 1, 0, 100 * time.Millisecond},
		{"zero attempt clamps to first", 0, 0, 100 * time.Millisecond},
		{"third attempt", 3, 0, 400 * time.Millisecond},
		{"jitter applied", 2, 1, 300 * time.Millisecond},
		{"clamped to max", 10, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeBackoffWithRand(policy, tt.attempt, tt.random); got != tt.want {
				t.Errorf("ComputeBackoffWithRand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoff_SucceedsAfterRetries(t *testing.T) {
	var attempts int32
	result, err := RetryWithBackoff(context.Background(), fastPolicy, 5, func(attempt int) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, errTemporary
		}
		return int(n), nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}
	if result.Value != 3 || result.Attempts != 3 {
		t.Errorf("result = %+v, want value 3 after 3 attempts", result)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	var attempts int32
	result, err := RetryWithBackoff(context.Background(), fastPolicy, 3, func(int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errTemporary
	})
	if !errors.Is(err, ErrMaxAttemptsExhausted) {
		t.Fatalf("error = %v, want ErrMaxAttemptsExhausted", err)
	}
	if !errors.Is(result.LastError, errTemporary) {
		t.Errorf("LastError = %v", result.LastError)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_PermanentStops(t *testing.T) {
	var attempts int32
	_, err := RetryWithBackoff(context.Background(), fastPolicy, 5, func(int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", Permanent(errTemporary)
	})
	if !errors.Is(err, errTemporary) {
		t.Fatalf("error = %v, want the wrapped permanent error", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithBackoff(ctx, fastPolicy, 3, func(int) (string, error) {
		t.Fatal("fn should not run on a cancelled context")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := SleepWithContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := SleepWithContext(ctx, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
