package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an event exceeds its limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	KindToolCall = "tool_call"
	KindRequest  = "request"
)

// RateLimitConfig holds per-minute limits. Zero disables a limit.
type RateLimitConfig struct {
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	RequestsPerMin  int `yaml:"requests_per_min"`
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.ToolCallsPerMin > 0 || c.RequestsPerMin > 0
}

// RateLimiter is a sliding-window limiter keyed by kind.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a limiter with one-minute windows for each
// configured kind.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	if cfg.ToolCallsPerMin > 0 {
		rl.buckets[KindToolCall] = &bucket{window: time.Minute, limit: cfg.ToolCallsPerMin}
	}
	if cfg.RequestsPerMin > 0 {
		rl.buckets[KindRequest] = &bucket{window: time.Minute, limit: cfg.RequestsPerMin}
	}
	return rl
}

// Allow records one event of kind, or returns ErrRateLimited. Kinds with no
// configured limit are always allowed.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN records n events of kind at once, or none of them.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)
	if len(b.events)+n > b.limit {
		return ErrRateLimited
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// Remaining returns how many events of kind fit in the current window, or
// -1 when kind is unlimited.
func (rl *RateLimiter) Remaining(kind string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return -1
	}
	b.evict(rl.now())
	return b.limit - len(b.events)
}

// evict drops events outside the window. Events are in time order.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
