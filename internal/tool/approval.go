package tool

import (
	"context"
	"encoding/json"
)

// Checkpoint identifies which of the two approval gates a request is for.
type Checkpoint string

// Checkpoint values.
const (
	CheckpointExecution Checkpoint = "execution"
	CheckpointResult    Checkpoint = "result"
)

// ExecutionRequest is sent to an ExecutionApprover before a tool runs.
type ExecutionRequest struct {
	// ID is a unique identifier for this approval request.
	ID string

	// ToolName is the name of the tool requesting approval.
	ToolName string

	// Description is the tool's description.
	Description string

	// Arguments are the arguments that will be passed to the tool, compressed
	// when the tool implements ArgsCompressor.
	Arguments json.RawMessage

	// Permission is the effective permission that triggered the request.
	Permission Permission
}

// ResultRequest is sent to a ResultApprover after a tool succeeded.
type ResultRequest struct {
	ID        string
	ToolName  string
	Arguments json.RawMessage

	// Data is the tool's output, compressed when the tool implements
	// ResultCompressor.
	Data    any
	IsError bool
}

// Decision is the answer of an approver.
type Decision struct {
	// Approved indicates whether the user approved.
	Approved bool `json:"approved"`

	// Persist asks the registry to store the decision durably. Ignored at
	// the result checkpoint.
	Persist bool `json:"persist,omitempty"`

	// Reason is an optional explanation, forwarded to the model on rejection.
	Reason string `json:"reason,omitempty"`
}

// ExecutionApprover is asked before a gated tool runs. Implementations may
// block for as long as the user takes; the registry imposes no deadline
// unless WithApprovalTimeout is set.
type ExecutionApprover interface {
	ApproveExecution(ctx context.Context, req ExecutionRequest) (Decision, error)
}

// ResultApprover is asked before a successful result is shown to the model.
type ResultApprover interface {
	ApproveResult(ctx context.Context, req ResultRequest) (Decision, error)
}

// ExecutionApproverFunc adapts a function to ExecutionApprover.
type ExecutionApproverFunc func(ctx context.Context, req ExecutionRequest) (Decision, error)

// ApproveExecution implements ExecutionApprover.
func (f ExecutionApproverFunc) ApproveExecution(ctx context.Context, req ExecutionRequest) (Decision, error) {
	return f(ctx, req)
}

// ResultApproverFunc adapts a function to ResultApprover.
type ResultApproverFunc func(ctx context.Context, req ResultRequest) (Decision, error)

// ApproveResult implements ResultApprover.
func (f ResultApproverFunc) ApproveResult(ctx context.Context, req ResultRequest) (Decision, error) {
	return f(ctx, req)
}
