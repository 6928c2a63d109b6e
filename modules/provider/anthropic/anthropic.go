// Package anthropic implements a provider.Completer backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flemzord/toolgate/internal/provider"
)

// Interface guard.
var _ provider.Completer = (*Anthropic)(nil)

// Anthropic implements provider.Completer using the Anthropic Messages API.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

// New builds a client from cfg. The API key falls back to the variable
// named by APIKeyEnv, then ANTHROPIC_API_KEY.
func New(cfg Config, logger *slog.Logger) (*Anthropic, error) {
	cfg.defaults()
	if cfg.Model == "" {
		return nil, errors.New("provider.anthropic: model must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Failover is handled by provider.Chain.
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := sdkanthropic.NewClient(opts...)
	return &Anthropic{config: cfg, client: &client, logger: logger}, nil
}

// ModelName implements provider.Completer.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// Complete implements provider.Completer.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	msg, err := a.client.Messages.New(ctx, a.convertRequest(req))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return convertResponse(msg), nil
}

// convertRequest extracts leading system messages into the dedicated
// System field and maps the remaining turns.
func (a *Anthropic) convertRequest(req provider.CompletionRequest) sdkanthropic.MessageNewParams {
	system, rest := provider.SplitSystem(req.Messages)

	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(a.config.Model),
		MaxTokens: int64(a.config.MaxTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	for _, s := range system {
		params.System = append(params.System, sdkanthropic.TextBlockParam{Text: s})
	}

	for i, m := range rest {
		switch m.Role {
		case provider.MessageRoleUser:
			params.Messages = append(params.Messages, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(m.Content)))
		case provider.MessageRoleAssistant:
			params.Messages = append(params.Messages, sdkanthropic.NewAssistantMessage(sdkanthropic.NewTextBlock(m.Content)))
		default:
			a.logger.Warn("provider.anthropic: dropping non-leading system message", "index", i)
		}
	}
	return params
}

func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var content string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			if content != "" {
				content += "\n"
			}
			content += v.Text
		}
	}
	return provider.CompletionResponse{
		Content:      content,
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
