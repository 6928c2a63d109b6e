package provider_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/provider/providertest"
)

func quiet() provider.ChainOption {
	return provider.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func failing(err error) *providertest.MockCompleter {
	return &providertest.MockCompleter{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{provider.ErrRateLimit, true},
		{fmt.Errorf("api: %w", provider.ErrProviderDown), true},
		{provider.ErrContextLength, false},
		{provider.ErrAllProviders, false},
		{errors.New("something"), false},
	}
	for _, tt := range tests {
		if got := provider.IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCompleteText(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockCompleter{Reply: "  answer \n"}
	got, err := provider.CompleteText(context.Background(), mock, "be terse", "question")
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if got != "answer" {
		t.Errorf("got %q", got)
	}
	req, _ := mock.LastRequest()
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.MessageRoleSystem || req.Messages[1].Content != "question" {
		t.Errorf("request messages: %+v", req.Messages)
	}

	if _, err := provider.CompleteText(context.Background(), &providertest.MockCompleter{}, "", "q"); !errors.Is(err, provider.ErrEmptyResponse) {
		t.Errorf("empty reply: expected ErrEmptyResponse, got %v", err)
	}
	if _, err := provider.CompleteText(context.Background(), nil, "", "q"); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("nil completer: expected ErrNoProvider, got %v", err)
	}
}

func TestSplitSystem(t *testing.T) {
	t.Parallel()

	system, rest := provider.SplitSystem([]provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: "a"},
		{Role: provider.MessageRoleSystem, Content: "b"},
		{Role: provider.MessageRoleUser, Content: "hi"},
	})
	if len(system) != 2 || system[1] != "b" || len(rest) != 1 || rest[0].Content != "hi" {
		t.Errorf("got %v / %+v", system, rest)
	}
}

func TestNewChain_Validation(t *testing.T) {
	t.Parallel()

	if _, err := provider.NewChain(nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("empty chain: got %v", err)
	}
	if _, err := provider.NewChain([]provider.ChainEntry{{Name: "x"}}); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("nil completer: got %v", err)
	}
}

func TestChain_FailsOverOnRetryable(t *testing.T) {
	t.Parallel()

	primary := failing(provider.ErrRateLimit)
	secondary := &providertest.MockCompleter{Reply: "from secondary", Model: "b"}
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Completer: primary},
		{Name: "secondary", Completer: secondary},
	}, quiet(), provider.WithCooldown(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		resp, err := chain.Complete(context.Background(), provider.CompletionRequest{})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "from secondary" {
			t.Errorf("content: got %q", resp.Content)
		}
	}
	if primary.Calls() != 1 {
		t.Errorf("primary should be cooling down after one failure, got %d calls", primary.Calls())
	}
	if chain.ModelName() != "mock-model,b" {
		t.Errorf("ModelName: got %q", chain.ModelName())
	}
}

func TestChain_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("bad request")
	secondary := &providertest.MockCompleter{Reply: "unused"}
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Completer: failing(wantErr)},
		{Name: "secondary", Completer: secondary},
	}, quiet())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := chain.Complete(context.Background(), provider.CompletionRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if secondary.Calls() != 0 {
		t.Error("non-retryable errors must not fail over")
	}
}

func TestChain_AllFailed(t *testing.T) {
	t.Parallel()

	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Completer: failing(provider.ErrProviderDown)},
		{Name: "b", Completer: failing(provider.ErrRateLimit)},
	}, quiet())
	if err != nil {
		t.Fatal(err)
	}

	_, err = chain.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) || !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("expected ErrAllProviders wrapping the last error, got %v", err)
	}
	_, err = chain.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Errorf("cooling chain: expected ErrAllProviders, got %v", err)
	}
}

func TestChain_CanceledContext(t *testing.T) {
	t.Parallel()

	chain, err := provider.NewChain([]provider.ChainEntry{{Name: "a", Completer: &providertest.MockCompleter{Reply: "x"}}}, quiet())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Complete(ctx, provider.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestChain_Status(t *testing.T) {
	t.Parallel()

	primary := failing(provider.ErrProviderDown)
	secondary := &providertest.MockCompleter{Reply: "ok", Model: "b"}
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Completer: primary},
		{Name: "secondary", Completer: secondary},
	}, quiet(), provider.WithCooldown(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range chain.Status() {
		if !st.Available {
			t.Errorf("%s should start available", st.Name)
		}
	}

	if _, err := chain.Complete(context.Background(), provider.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got := chain.Status()
	if len(got) != 2 {
		t.Fatalf("got %d statuses", len(got))
	}
	if got[0].Name != "primary" || got[0].Available || got[0].CooldownUntil.IsZero() {
		t.Errorf("primary: got %+v", got[0])
	}
	if got[1].Name != "secondary" || !got[1].Available || got[1].Model != "b" {
		t.Errorf("secondary: got %+v", got[1])
	}
}
