package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// defaultCooldown is how long a failing provider is skipped.
const defaultCooldown = 30 * time.Second

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name      string
	Completer Completer
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCooldown sets how long a provider that failed with a retryable
// error is skipped.
func WithCooldown(d time.Duration) ChainOption {
	return func(c *Chain) { c.cooldown = d }
}

type chainEntry struct {
	ChainEntry
	until time.Time
}

// Chain is a Completer that fails over across providers in order. A
// provider that fails with a retryable error is skipped for a cooldown
// period; non-retryable errors stop the failover.
type Chain struct {
	logger   *slog.Logger
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries []*chainEntry
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	c := &Chain{
		logger:   slog.Default(),
		cooldown: defaultCooldown,
		now:      time.Now,
	}
	for _, e := range entries {
		if e.Completer == nil {
			return nil, fmt.Errorf("%w: entry %q has nil completer", ErrNoProvider, e.Name)
		}
		c.entries = append(c.entries, &chainEntry{ChainEntry: e})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ModelName implements Completer. It lists the models in chain order.
func (c *Chain) ModelName() string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.Completer.ModelName())
	}
	return strings.Join(names, ",")
}

// Complete implements Completer.
func (c *Chain) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error
	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !c.available(e) {
			continue
		}

		resp, err := e.Completer.Complete(ctx, req)
		if err == nil {
			c.markHealthy(e)
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}
		c.coolDown(e)
		c.logger.Warn("provider failed, failing over", "provider", e.Name, "error", err)
	}

	if lastErr != nil {
		return CompletionResponse{}, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	return CompletionResponse{}, fmt.Errorf("%w: all candidates cooling down", ErrAllProviders)
}

func (c *Chain) available(e *chainEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.until.IsZero() || !c.now().Before(e.until)
}

func (c *Chain) coolDown(e *chainEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.until = c.now().Add(c.cooldown)
}

func (c *Chain) markHealthy(e *chainEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !e.until.IsZero() {
		c.logger.Info("provider revived", "provider", e.Name)
	}
	e.until = time.Time{}
}

// Status is a provider's availability as seen by the chain.
type Status struct {
	Name          string    `json:"name"`
	Model         string    `json:"model"`
	Available     bool      `json:"available"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
}

// Status reports every provider in chain order.
func (c *Chain) Status() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Status, 0, len(c.entries))
	for _, e := range c.entries {
		st := Status{
			Name:      e.Name,
			Model:     e.Completer.ModelName(),
			Available: e.until.IsZero() || !now.Before(e.until),
		}
		if !st.Available {
			st.CooldownUntil = e.until
		}
		out = append(out, st)
	}
	return out
}

var _ Completer = (*Chain)(nil)
