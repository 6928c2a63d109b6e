// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/toolgate/internal/provider"
)

// MockCompleter is a configurable test double for provider.Completer.
// With CompleteFunc unset it answers with Reply.
// All methods are safe for concurrent use.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	Reply        string
	Model        string

	mu       sync.Mutex
	calls    int
	requests []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return provider.CompletionResponse{Content: m.Reply, FinishReason: provider.FinishReasonStop}, nil
}

// ModelName returns Model, or "mock-model".
func (m *MockCompleter) ModelName() string {
	if m.Model != "" {
		return m.Model
	}
	return "mock-model"
}

// Calls returns the number of Complete calls.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, if any.
func (m *MockCompleter) LastRequest() (provider.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return provider.CompletionRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Interface guard.
var _ provider.Completer = (*MockCompleter)(nil)
