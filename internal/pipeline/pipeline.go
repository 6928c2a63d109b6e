// Package pipeline turns a tool's raw output into the text the model
// reads: format, then truncate, then cache the untruncated text on disk.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Subject is the tool whose output is processed. Optional behavior is
// discovered on it by type assertion: Formatter, Truncator, OutputLimiter,
// ExternalTruncationSkipper and CacheSkipper.
type Subject interface {
	Schema() json.RawMessage
}

// CacheSkipper marks tools whose results must not be cached.
type CacheSkipper interface {
	SkipCacheResult() bool
}

// Config configures a Pipeline.
type Config struct {
	// DefaultLimit is the character budget. Zero means DefaultLimit;
	// a negative value disables truncation.
	DefaultLimit int

	// Cache stores untruncated output. Nil disables caching.
	Cache *Cache

	Logger *slog.Logger
}

// Processed is the output of the pipeline for one call.
type Processed struct {
	FormattedText string
	FinalText     string
	IsTruncated   bool
	CacheFile     string
}

// Pipeline is stateless apart from its cache directory.
type Pipeline struct {
	limit  int
	cache  *Cache
	logger *slog.Logger
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	limit := cfg.DefaultLimit
	if limit == 0 {
		limit = DefaultLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{limit: limit, cache: cfg.Cache, logger: logger}
}

// Cache returns the result cache, or nil.
func (p *Pipeline) Cache() *Cache { return p.cache }

// Limit returns the default character budget.
func (p *Pipeline) Limit() int { return p.limit }

// Process runs format → truncate → cache for one successful call. A cache
// write failure is logged and does not fail the call.
func (p *Pipeline) Process(ctx context.Context, toolName string, subject Subject, data any, args json.RawMessage) (Processed, error) {
	formatted, err := Format(subject, data, args)
	if err != nil {
		return Processed{}, err
	}

	out := Processed{FormattedText: formatted, FinalText: formatted}
	if s, ok := subject.(ExternalTruncationSkipper); !ok || !s.SkipExternalTruncate() {
		if t, ok := subject.(Truncator); ok {
			out.FinalText, out.IsTruncated = t.TruncateForLLM(formatted, args)
		} else {
			limit := ResolveLimit(subject, subject.Schema(), args, p.limit)
			out.FinalText, out.IsTruncated = Truncate(formatted, limit)
		}
	}

	if p.cache == nil || ctx.Err() != nil {
		return out, nil
	}
	if s, ok := subject.(CacheSkipper); ok && s.SkipCacheResult() {
		return out, nil
	}
	path, err := p.cache.Write(toolName, args, formatted)
	if err != nil {
		p.logger.Warn("pipeline: cache write failed", "tool", toolName, "error", err)
		return out, nil
	}
	out.CacheFile = path
	return out, nil
}
