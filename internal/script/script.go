// Package script implements ToolCallScript, a tool that runs a
// model-authored JavaScript program in a restricted sandbox. The program
// calls other registered tools through TOOL_CALL, fans out with parallel
// and coerces free text into JSON with FORMALIZE. Its console output is
// the tool's result.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/tool"
)

// Name is the tool name the model calls.
const Name = "ToolCallScript"

const (
	// DefaultTimeout applies when the call does not set one.
	DefaultTimeout = 60 * time.Second

	// MaxTimeout is the upper bound for any call.
	MaxTimeout = 5 * time.Minute
)

// Caller re-enters the registry. *tool.Registry implements it.
type Caller interface {
	Execute(ctx context.Context, name string, args json.RawMessage, opts tool.ExecuteOptions) tool.Result
}

// catalog is the optional part of a Caller used to describe the tools a
// script can reach. It never asks a tool for its description, since the
// sandbox's own description is built from it.
type catalog interface {
	Names() []string
	IsToolEnabled(name string) bool
	Lookup(name string) (tool.Tool, bool)
}

// Option configures a Tool.
type Option func(*Tool)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithDefaultTimeout overrides DefaultTimeout. It is still clamped.
func WithDefaultTimeout(d time.Duration) Option {
	return func(t *Tool) {
		if d > 0 {
			t.defaultTimeout = d
		}
	}
}

// WithPermission overrides the default permission (ask-always).
func WithPermission(p tool.Permission) Option {
	return func(t *Tool) { t.permission = p }
}

// Tool is the orchestration sandbox exposed as a tool.
type Tool struct {
	caller         Caller
	completer      provider.Completer
	logger         *slog.Logger
	defaultTimeout time.Duration
	permission     tool.Permission
}

// Interface guards.
var (
	_ tool.Tool           = (*Tool)(nil)
	_ tool.Formatter      = (*Tool)(nil)
	_ tool.ArgsCompressor = (*Tool)(nil)
)

// New creates the sandbox tool. completer may be nil, in which case
// FORMALIZE always rejects.
func New(caller Caller, completer provider.Completer, opts ...Option) *Tool {
	t := &Tool{
		caller:         caller,
		completer:      completer,
		logger:         slog.Default(),
		defaultTimeout: DefaultTimeout,
		permission:     tool.Permission{Execution: tool.ExecAskAlways, Result: tool.ResultNever},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

const baseDescription = `Run a JavaScript program that orchestrates other tools in one step.
The body runs inside an async function, so await is allowed at the top level.
Available globals:
- TOOL_CALL(name, args): calls a tool and resolves with its data. Rejects if the tool fails.
- parallel(...promises): waits for all promises, like Promise.all.
- FORMALIZE(text, typeDescription): asks the model to turn text into JSON of the given type.
- sleep(ms): resolves after ms milliseconds.
- console.log / console.warn / console.error: the only way to return output.
Characters that are awkward inside JSON may be written as _esc_dquote_, _esc_squote_,
_esc_backslash_ and _esc_newline_; they are replaced before the script runs.`

// Description implements tool.Tool. When the caller exposes its catalog
// the enabled tools and their declared return types are listed.
func (t *Tool) Description() string {
	cat, ok := t.caller.(catalog)
	if !ok {
		return baseDescription
	}
	var lines []string
	for _, name := range cat.Names() {
		if name == Name || !cat.IsToolEnabled(name) {
			continue
		}
		line := "- " + name
		if tt, ok := cat.Lookup(name); ok {
			if rt, ok := tt.(tool.ReturnTyper); ok && rt.DeclaredReturnType() != "" {
				line += " -> " + rt.DeclaredReturnType()
			}
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return baseDescription
	}
	sort.Strings(lines)
	return baseDescription + "\n\nTools callable with TOOL_CALL:\n" + strings.Join(lines, "\n")
}

// Schema implements tool.Tool.
func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "script": {"type": "string", "description": "JavaScript body to run."},
    "timeout": {"type": "number", "description": "Timeout in milliseconds. Defaults to 60000, at most 300000."}
  },
  "required": ["script"]
}`)
}

// DefaultPermission implements tool.Tool.
func (t *Tool) DefaultPermission() tool.Permission { return t.permission }

type callArgs struct {
	Script  string   `json:"script"`
	Timeout *float64 `json:"timeout,omitempty"`
}

func decodeArgs(args json.RawMessage) (callArgs, error) {
	var in callArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if strings.TrimSpace(in.Script) == "" {
		return in, ErrEmptyScript
	}
	return in, nil
}

// Execute implements tool.Tool. The inner tool calls bypass approvals:
// the script call itself was the gated one.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	in, err := decodeArgs(args)
	if err != nil {
		return tool.Output{}, err
	}
	var timeout time.Duration
	if in.Timeout != nil {
		timeout = time.Duration(*in.Timeout * float64(time.Millisecond))
	}

	rep, err := t.Run(ctx, Unescape(in.Script), timeout)
	if err != nil {
		if !rep.Empty() {
			return tool.Output{}, fmt.Errorf("%w\n\nOutput before failure:\n%s", err, rep.Text())
		}
		return tool.Output{}, err
	}
	return tool.Output{Data: rep.Text()}, nil
}

// FormatForLLM implements tool.Formatter. The log text is already prose.
func (t *Tool) FormatForLLM(data any, _ json.RawMessage) (string, error) {
	if s, ok := data.(string); ok {
		return s, nil
	}
	return fmt.Sprint(data), nil
}

// CompressArgs implements tool.ArgsCompressor. Approvers see the script
// with its escape tokens already replaced.
func (t *Tool) CompressArgs(args json.RawMessage) json.RawMessage {
	in, err := decodeArgs(args)
	if err != nil {
		return args
	}
	in.Script = Unescape(in.Script)
	out, err := json.Marshal(in)
	if err != nil {
		return args
	}
	return out
}

func (t *Tool) clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		d = t.defaultTimeout
	}
	if d > MaxTimeout {
		d = MaxTimeout
	}
	return d
}
