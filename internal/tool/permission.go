package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExecutionPolicy decides whether a tool call needs approval before it runs.
type ExecutionPolicy string

const (
	// ExecAuto runs the tool without asking.
	ExecAuto ExecutionPolicy = "auto"

	// ExecAskOnce asks once per tool and argument set; the decision is
	// remembered for the lifetime of the registry.
	ExecAskOnce ExecutionPolicy = "ask-once"

	// ExecAskAlways asks on every call.
	ExecAskAlways ExecutionPolicy = "ask-always"
)

// ResultPolicy decides whether a successful result needs approval before
// it is shown to the model.
type ResultPolicy string

const (
	// ResultNever forwards results without asking.
	ResultNever ResultPolicy = "never"

	// ResultOnError asks only when the tool flagged its output as an error.
	ResultOnError ResultPolicy = "on-error"

	// ResultAlways asks for every successful result.
	ResultAlways ResultPolicy = "always"
)

// Permission is the canonical two-policy permission of a tool.
// Empty fields mean "inherit".
type Permission struct {
	Execution ExecutionPolicy `yaml:"execution" json:"execution,omitempty"`
	Result    ResultPolicy    `yaml:"result" json:"result,omitempty"`
}

// DefaultPermission is the global fallback: ask once, never review results.
var DefaultPermission = Permission{Execution: ExecAskOnce, Result: ResultNever}

// Public is the permission of tools that are safe to run unattended.
var Public = Permission{Execution: ExecAuto, Result: ResultNever}

// Over returns p with its empty fields filled from base.
func (p Permission) Over(base Permission) Permission {
	if p.Execution == "" {
		p.Execution = base.Execution
	}
	if p.Result == "" {
		p.Result = base.Result
	}
	return p
}

// Validate reports unknown policy values. Empty fields are valid.
func (p Permission) Validate() error {
	switch p.Execution {
	case "", ExecAuto, ExecAskOnce, ExecAskAlways:
	default:
		return fmt.Errorf("%w: execution policy %q", ErrInvalidPermission, p.Execution)
	}
	switch p.Result {
	case "", ResultNever, ResultOnError, ResultAlways:
	default:
		return fmt.Errorf("%w: result policy %q", ErrInvalidPermission, p.Result)
	}
	return nil
}

// permissionShape records which on-disk form a PermissionSpec was read from.
type permissionShape int

const (
	shapeCurrent permissionShape = iota // {execution, result}
	shapeLevel                          // "public" | "normal" | "ask" | "dangerous"
	shapeFlags                          // {requires_approval, remember, review_result}
)

// PermissionSpec is a user override as written in configuration or in a
// script sidecar. Legacy shapes are translated into a canonical Permission
// once, while decoding; resolution only ever sees Permission.
type PermissionSpec struct {
	Permission Permission
	shape      permissionShape
}

// Legacy reports whether the override was written in a legacy shape.
func (s PermissionSpec) Legacy() bool { return s.shape != shapeCurrent }

// rawPermission holds every field of every accepted shape.
type rawPermission struct {
	Execution        ExecutionPolicy `yaml:"execution" json:"execution"`
	Result           ResultPolicy    `yaml:"result" json:"result"`
	Level            string          `yaml:"level" json:"level"`
	RequiresApproval *bool           `yaml:"requires_approval" json:"requires_approval"`
	Remember         *bool           `yaml:"remember" json:"remember"`
	ReviewResult     *bool           `yaml:"review_result" json:"review_result"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *PermissionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return s.fromLevel(node.Value)
	}
	var raw rawPermission
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return s.fromRaw(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PermissionSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var level string
		if err := json.Unmarshal(data, &level); err != nil {
			return err
		}
		return s.fromLevel(level)
	}
	var raw rawPermission
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.fromRaw(raw)
}

// MarshalJSON always writes the canonical shape.
func (s PermissionSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Permission)
}

func (s *PermissionSpec) fromRaw(raw rawPermission) error {
	switch {
	case raw.Execution != "" || raw.Result != "":
		s.shape = shapeCurrent
		s.Permission = Permission{Execution: raw.Execution, Result: raw.Result}
	case raw.RequiresApproval != nil || raw.Remember != nil || raw.ReviewResult != nil:
		s.shape = shapeFlags
		s.Permission = permissionFromFlags(raw.RequiresApproval, raw.Remember, raw.ReviewResult)
	case raw.Level != "":
		return s.fromLevel(raw.Level)
	default:
		s.shape = shapeCurrent
		s.Permission = Permission{}
	}
	return s.Permission.Validate()
}

func (s *PermissionSpec) fromLevel(level string) error {
	s.shape = shapeLevel
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "public", "auto":
		s.Permission = Public
	case "normal", "ask", "ask-once":
		s.Permission = Permission{Execution: ExecAskOnce, Result: ResultNever}
	case "ask-always":
		s.Permission = Permission{Execution: ExecAskAlways, Result: ResultNever}
	case "dangerous":
		s.Permission = Permission{Execution: ExecAskAlways, Result: ResultAlways}
	default:
		return fmt.Errorf("%w: unknown permission level %q", ErrInvalidPermission, level)
	}
	return nil
}

func permissionFromFlags(requires, remember, review *bool) Permission {
	var p Permission
	if requires != nil {
		switch {
		case !*requires:
			p.Execution = ExecAuto
		case remember == nil || *remember:
			p.Execution = ExecAskOnce
		default:
			p.Execution = ExecAskAlways
		}
	}
	if review != nil {
		if *review {
			p.Result = ResultAlways
		} else {
			p.Result = ResultNever
		}
	}
	return p
}

// Overrides maps tool names to user permission overrides. It is keyed by
// tool name only; argument values never select a permission.
type Overrides map[string]PermissionSpec

// Resolve returns the effective permission of t:
// override ?? tool default ?? global default, field by field.
func (o Overrides) Resolve(t Tool) Permission {
	perm := t.DefaultPermission().Over(DefaultPermission)
	if spec, ok := o[strings.TrimSpace(t.Name())]; ok {
		perm = spec.Permission.Over(perm)
	}
	return perm
}
