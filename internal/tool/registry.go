package tool

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolgate/internal/pipeline"
	"github.com/flemzord/toolgate/internal/security"
)

// Observer receives one notification per registry execution and per
// approval decision. internal/metrics implements it with prometheus.
type Observer interface {
	ObserveExecution(toolName string, status Status, elapsed time.Duration)
	ObserveApproval(toolName string, checkpoint Checkpoint, approved bool)
}

// GroupInfo describes a registered group for listing.
type GroupInfo struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Tools   []string `json:"tools"`
}

type toolEntry struct {
	tool    Tool
	enabled bool
	group   string
}

type groupEntry struct {
	group   Group
	enabled bool
}

// Registry holds registered tools and groups, and orchestrates their
// execution through the permission and approval system.
// It is instance-based (not global) for better testability.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*toolEntry
	groups    map[string]*groupEntry
	overrides Overrides

	logger          *slog.Logger
	pipeline        *pipeline.Pipeline
	execApprover    ExecutionApprover
	resultApprover  ResultApprover
	durable         DecisionStore
	memo            *MemoryDecisions
	approvalTimeout time.Duration
	validate        bool
	validators      *validatorCache
	observer        Observer
	audit           *security.AuditLogger
	rateLimiter     *security.RateLimiter
	elevated        *ElevatedState
	tracer          trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPipeline sets the result pipeline. Without one, a pipeline with
// default limits and no cache is used.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(r *Registry) {
		if p != nil {
			r.pipeline = p
		}
	}
}

// WithOverrides sets user permission overrides.
func WithOverrides(o Overrides) Option {
	return func(r *Registry) { r.overrides = o }
}

// WithExecutionApprover sets the approver asked before gated tools run.
func WithExecutionApprover(a ExecutionApprover) Option {
	return func(r *Registry) { r.execApprover = a }
}

// WithResultApprover sets the approver asked before results are released.
func WithResultApprover(a ResultApprover) Option {
	return func(r *Registry) { r.resultApprover = a }
}

// WithDecisionStore sets the durable store for persisted decisions.
func WithDecisionStore(s DecisionStore) Option {
	return func(r *Registry) { r.durable = s }
}

// WithApprovalTimeout bounds how long an approver may take. Zero, the
// default, waits for as long as the approver takes.
func WithApprovalTimeout(d time.Duration) Option {
	return func(r *Registry) { r.approvalTimeout = d }
}

// WithArgumentValidation enables JSON Schema validation of arguments.
func WithArgumentValidation(enabled bool) Option {
	return func(r *Registry) { r.validate = enabled }
}

// WithObserver sets the execution observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithAuditLogger enables audit events for every execution step.
func WithAuditLogger(a *security.AuditLogger) Option {
	return func(r *Registry) { r.audit = a }
}

// WithRateLimiter bounds tool calls using the "tool_call" bucket.
func WithRateLimiter(l *security.RateLimiter) Option {
	return func(r *Registry) { r.rateLimiter = l }
}

// WithElevatedState shares an elevated-mode switch with the registry.
func WithElevatedState(e *ElevatedState) Option {
	return func(r *Registry) { r.elevated = e }
}

// WithTracerProvider sets the provider for execution spans. Defaults to
// the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/flemzord/toolgate/internal/tool"

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:      make(map[string]*toolEntry),
		groups:     make(map[string]*groupEntry),
		logger:     slog.Default(),
		memo:       NewMemoryDecisions(),
		validators: newValidatorCache(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pipeline == nil {
		r.pipeline = pipeline.New(pipeline.Config{})
	}
	return r
}

// Pipeline returns the result pipeline used by the registry.
func (r *Registry) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Elevated returns the elevated-mode switch, creating one on first use.
func (r *Registry) Elevated() *ElevatedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.elevated == nil {
		r.elevated = NewElevatedState()
	}
	return r.elevated
}

// RegisterTool adds a standalone tool. A tool with the same name is
// replaced and a warning is logged; its enabled flag is preserved.
func (r *Registry) RegisterTool(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(t, "")
}

// checkName rejects empty names and names with surrounding whitespace, so
// the registry key always equals the name a tool reports.
func checkName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return ErrEmptyToolName
	case trimmed != name:
		return fmt.Errorf("%w: %q", ErrPaddedName, name)
	}
	return nil
}

func (r *Registry) registerLocked(t Tool, group string) error {
	name := t.Name()
	if err := checkName(name); err != nil {
		return err
	}
	enabled := true
	if prev, ok := r.tools[name]; ok {
		enabled = prev.enabled
		if prev.group != group {
			r.logger.Warn("tool: overwriting tool registered elsewhere",
				"tool", name, "previous_group", prev.group, "group", group)
		} else if group == "" {
			r.logger.Warn("tool: overwriting registered tool", "tool", name)
		}
	}
	r.tools[name] = &toolEntry{tool: t, enabled: enabled, group: group}
	r.validators.forget(name)
	return nil
}

// RegisterGroup registers every tool of g under the group. A group with no
// tools is ignored. New groups start disabled; re-registering a known
// group keeps its flag and drops members that are no longer present.
func (r *Registry) RegisterGroup(g Group) error {
	if len(g.Tools) == 0 {
		return nil
	}
	if err := checkName(g.Name); err != nil {
		return fmt.Errorf("group name: %w", err)
	}
	for _, t := range g.Tools {
		if err := checkName(t.Name()); err != nil {
			return fmt.Errorf("group %s: %w", g.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	enabled := false
	if prev, ok := r.groups[g.Name]; ok {
		enabled = prev.enabled
	}

	keep := make(map[string]bool, len(g.Tools))
	for _, t := range g.Tools {
		if err := r.registerLocked(t, g.Name); err != nil {
			return fmt.Errorf("group %s: %w", g.Name, err)
		}
		keep[t.Name()] = true
	}
	for name, e := range r.tools {
		if e.group == g.Name && !keep[name] {
			delete(r.tools, name)
			r.validators.forget(name)
		}
	}

	r.groups[g.Name] = &groupEntry{group: g, enabled: enabled}
	return nil
}

// UnregisterGroup removes a group and all of its tools.
func (r *Registry) UnregisterGroup(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for toolName, e := range r.tools {
		if e.group == name {
			delete(r.tools, toolName)
			r.validators.forget(toolName)
		}
	}
	delete(r.groups, name)
}

// SetToolEnabled sets a tool's own enabled flag.
func (r *Registry) SetToolEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	e.enabled = enabled
	return nil
}

// IsToolEnabled reports whether a tool is callable: its own flag is set
// and its group, if any, is enabled.
func (r *Registry) IsToolEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return ok && r.callableLocked(e)
}

func (r *Registry) callableLocked(e *toolEntry) bool {
	if !e.enabled {
		return false
	}
	if e.group == "" {
		return true
	}
	g, ok := r.groups[e.group]
	return ok && g.enabled
}

// SetGroupEnabled sets a group's flag. Enabling a group also enables all
// of its current tools.
func (r *Registry) SetGroupEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		return fmt.Errorf("%w: group %s", ErrToolNotFound, name)
	}
	g.enabled = enabled
	if enabled {
		for _, e := range r.tools {
			if e.group == name {
				e.enabled = true
			}
		}
	}
	return nil
}

// ToggleGroupEnabled flips a group's flag and returns the new value.
func (r *Registry) ToggleGroupEnabled(name string) (bool, error) {
	enabled := !r.IsGroupEnabled(name)
	if err := r.SetGroupEnabled(name, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// IsGroupEnabled reports a group's flag.
func (r *Registry) IsGroupEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	return ok && g.enabled
}

// Lookup returns the tool with the given name, whether or not it is enabled.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions returns the definitions of every registered tool, sorted by name.
func (r *Registry) Definitions() []Definition {
	return r.definitions(false)
}

// EnabledDefinitions returns the definitions of callable tools, sorted by
// name. This is what the model is offered.
func (r *Registry) EnabledDefinitions() []Definition {
	return r.definitions(true)
}

func (r *Registry) definitions(onlyEnabled bool) []Definition {
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		if onlyEnabled && !r.callableLocked(e) {
			continue
		}
		tools = append(tools, e.tool)
	}
	r.mu.RUnlock()

	// Descriptions may call back into the registry.
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, DefinitionOf(t))
	}
	slices.SortFunc(defs, func(a, b Definition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Groups lists registered groups sorted by name.
func (r *Registry) Groups() []GroupInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]GroupInfo, 0, len(r.groups))
	for name, g := range r.groups {
		infos = append(infos, GroupInfo{
			Name:    name,
			Enabled: g.enabled,
			Tools:   r.memberNamesLocked(name, false),
		})
	}
	slices.SortFunc(infos, func(a, b GroupInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}

func (r *Registry) memberNamesLocked(group string, onlyEnabled bool) []string {
	var names []string
	for name, e := range r.tools {
		if e.group != group || (onlyEnabled && !e.enabled) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToolRules aggregates the usage rules of every enabled group, in group
// name order. Each section lists the group's enabled tools followed by
// its rule text.
func (r *Registry) ToolRules() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name, g := range r.groups {
		if g.enabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		members := r.memberNamesLocked(name, true)
		if len(members) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\nTools: %s", name, strings.Join(members, ", "))
		if rules := r.groups[name].group.Rules; rules != nil {
			if text := strings.TrimSpace(rules(members)); text != "" {
				b.WriteString("\n")
				b.WriteString(text)
			}
		}
	}
	return b.String()
}

// SetOverrides replaces the permission overrides and forgets memoized
// decisions, since they were made under the old permissions.
func (r *Registry) SetOverrides(o Overrides) {
	r.mu.Lock()
	r.overrides = o
	r.mu.Unlock()
	r.ForgetDecisions()
}

// ForgetDecisions clears the in-memory ask-once memo. Durable decisions
// are kept.
func (r *Registry) ForgetDecisions() {
	r.memo.Forget()
}

// EffectivePermission returns the permission that applies to a tool:
// user override, else the tool's default, else the global default,
// merged field by field. Elevated mode is not applied.
func (r *Registry) EffectivePermission(name string) (Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Permission{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.overrides.Resolve(e.tool), nil
}
