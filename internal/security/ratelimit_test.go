package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_ToolCallWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 2})
	rl.now = func() time.Time { return now }

	for i := range 2 {
		if err := rl.Allow(KindToolCall); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow(KindToolCall); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call: err = %v, want ErrRateLimited", err)
	}
	if got := rl.Remaining(KindToolCall); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(KindToolCall); err != nil {
		t.Fatalf("after window: %v", err)
	}
	if got := rl.Remaining(KindToolCall); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
}

func TestRateLimiter_UnconfiguredKindsUnlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 1})
	for range 100 {
		if err := rl.Allow(KindRequest); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	if got := rl.Remaining(KindRequest); got != -1 {
		t.Errorf("Remaining = %d, want -1", got)
	}
	if (RateLimitConfig{}).Enabled() {
		t.Error("zero config reports enabled")
	}
}

func TestRateLimiter_AllowNAllOrNothing(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 5})
	if err := rl.AllowN(KindRequest, 4); err != nil {
		t.Fatalf("AllowN(4): %v", err)
	}
	if err := rl.AllowN(KindRequest, 2); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("AllowN(2): err = %v", err)
	}
	if got := rl.Remaining(KindRequest); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindToolCall) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
