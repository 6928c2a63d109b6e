// Package tool defines the tool interface, the permission model and the
// registry that gates every tool call an LLM makes. A call goes through
// lookup, permission resolution, an execution approval, the tool itself,
// a result approval and finally the result pipeline.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all toolgate tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// DefaultPermission returns the permission used when no user override
	// is configured. Empty fields fall back to the global defaults.
	DefaultPermission() Permission

	// Execute runs the tool with the given arguments. A returned error is
	// reported to the model as an ERROR result; it never propagates further.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the raw result of a tool execution, before formatting.
type Output struct {
	// Data is the tool's result. It is only meaningful on success.
	Data any

	// IsError marks a soft failure: the tool ran and returned data that
	// describes a problem (e.g. a script exiting non-zero).
	IsError bool
}

// Definition is the function definition offered to the model.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// DefinitionOf builds the Definition of t.
func DefinitionOf(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// Optional hooks. The registry and the result pipeline discover them by
// type assertion on the registered tool.

// Formatter renders a tool's data as text for the model.
type Formatter interface {
	FormatForLLM(data any, args json.RawMessage) (string, error)
}

// Truncator replaces the default truncation policy.
type Truncator interface {
	TruncateForLLM(formatted string, args json.RawMessage) (text string, truncated bool)
}

// OutputLimiter overrides the pipeline's default character budget.
type OutputLimiter interface {
	DefaultOutputLimitChars() int
}

// ExternalTruncationSkipper is implemented by tools that already bound
// their own output.
type ExternalTruncationSkipper interface {
	SkipExternalTruncate() bool
}

// CacheSkipper is implemented by tools whose results must not be written
// to the result cache.
type CacheSkipper interface {
	SkipCacheResult() bool
}

// ArgsCompressor returns a shortened view of the arguments, used in
// approval prompts and audit events.
type ArgsCompressor interface {
	CompressArgs(args json.RawMessage) json.RawMessage
}

// ResultCompressor returns a shortened view of the data shown to the
// result approver.
type ResultCompressor interface {
	CompressResult(data any) any
}

// ReturnTyper declares the shape of the tool's data, in a free-form type
// notation. It is listed in the orchestration prompt.
type ReturnTyper interface {
	DeclaredReturnType() string
}

// RulePrompt renders a group's usage rules given the names of its
// currently enabled tools.
type RulePrompt func(enabled []string) string

// StaticRules returns a RulePrompt that always yields s.
func StaticRules(s string) RulePrompt {
	return func([]string) string { return s }
}

// Group is a named bundle of tools that share an enable switch and a
// prompt fragment.
type Group struct {
	Name  string
	Tools []Tool
	Rules RulePrompt
}
