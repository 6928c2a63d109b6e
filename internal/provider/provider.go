// Package provider defines the Completer interface used wherever toolgate
// needs a model: the sandbox's FORMALIZE helper and model-based safety
// review. Concrete clients live under modules/provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Completer sends a single, non-streaming completion request.
type Completer interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// CompleteText is a convenience for one system prompt plus one user turn.
// It returns ErrEmptyResponse when the model answers with no text.
func CompleteText(ctx context.Context, c Completer, system, user string) (string, error) {
	if c == nil {
		return "", ErrNoProvider
	}
	var msgs []LLMMessage
	if system != "" {
		msgs = append(msgs, LLMMessage{Role: MessageRoleSystem, Content: system})
	}
	msgs = append(msgs, LLMMessage{Role: MessageRoleUser, Content: user})

	resp, err := c.Complete(ctx, CompletionRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%w from %s", ErrEmptyResponse, c.ModelName())
	}
	return text, nil
}

// SplitSystem separates leading system messages from the conversation.
func SplitSystem(msgs []LLMMessage) (system []string, rest []LLMMessage) {
	i := 0
	for ; i < len(msgs) && msgs[i].Role == MessageRoleSystem; i++ {
		system = append(system, msgs[i].Content)
	}
	return system, msgs[i:]
}

// IsRetryable reports whether the error is transient and the request
// can be retried with a different provider or after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
