// Package approval provides the approvers the registry asks before running
// a tool and before releasing its result: fixed policies, a model-based
// safety review, an interactive terminal prompt and a chain combining
// them.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/toolgate/internal/tool"
)

// ErrAbstain is returned by an approver that leaves the decision to the
// next approver of a Chain.
var ErrAbstain = errors.New("approver abstained")

// Approver answers both checkpoints.
type Approver interface {
	tool.ExecutionApprover
	tool.ResultApprover
}

// Auto approves everything.
type Auto struct{}

// ApproveExecution implements tool.ExecutionApprover.
func (Auto) ApproveExecution(context.Context, tool.ExecutionRequest) (tool.Decision, error) {
	return tool.Decision{Approved: true}, nil
}

// ApproveResult implements tool.ResultApprover.
func (Auto) ApproveResult(context.Context, tool.ResultRequest) (tool.Decision, error) {
	return tool.Decision{Approved: true}, nil
}

// Deny rejects everything with Reason.
type Deny struct {
	Reason string
}

func (d Deny) reason() string {
	if d.Reason != "" {
		return d.Reason
	}
	return "tool approvals are disabled"
}

// ApproveExecution implements tool.ExecutionApprover.
func (d Deny) ApproveExecution(context.Context, tool.ExecutionRequest) (tool.Decision, error) {
	return tool.Decision{Reason: d.reason()}, nil
}

// ApproveResult implements tool.ResultApprover.
func (d Deny) ApproveResult(context.Context, tool.ResultRequest) (tool.Decision, error) {
	return tool.Decision{Reason: d.reason()}, nil
}

// Chain asks each approver in order and returns the first decision. An
// approver returning ErrAbstain passes; any other error stops the chain.
// When every approver abstains the request is rejected.
type Chain []Approver

// ApproveExecution implements tool.ExecutionApprover.
func (c Chain) ApproveExecution(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error) {
	for _, a := range c {
		d, err := a.ApproveExecution(ctx, req)
		if errors.Is(err, ErrAbstain) {
			continue
		}
		return d, err
	}
	return tool.Decision{Reason: fmt.Sprintf("no approver decided on %s", req.ToolName)}, nil
}

// ApproveResult implements tool.ResultApprover.
func (c Chain) ApproveResult(ctx context.Context, req tool.ResultRequest) (tool.Decision, error) {
	for _, a := range c {
		d, err := a.ApproveResult(ctx, req)
		if errors.Is(err, ErrAbstain) {
			continue
		}
		return d, err
	}
	return tool.Decision{Reason: fmt.Sprintf("no approver decided on the result of %s", req.ToolName)}, nil
}

// Interface guards.
var (
	_ Approver = Auto{}
	_ Approver = Deny{}
	_ Approver = Chain(nil)
)
