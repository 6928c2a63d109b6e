package tool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ApprovalState represents the current state of a pending approval.
type ApprovalState int

// ApprovalState values for the pending approval state machine.
const (
	StateIdle    ApprovalState = iota // No pending approval
	StatePending                      // Waiting for a decision
	StateTimeout                      // Timed out, rejected by default
)

// AskFunc produces a decision, blocking until one is available or ctx ends.
type AskFunc func(ctx context.Context) (Decision, error)

// PendingApproval manages the state machine for a single approval flow.
// It transitions: idle → pending → (decision | timeout → reject-by-default).
// A decision can come either from the AskFunc passed to Begin or from
// Respond, whichever is first.
type PendingApproval struct {
	mu           sync.Mutex
	state        ApprovalState
	ResponseChan chan Decision
}

// NewPendingApproval creates a new PendingApproval in the idle state.
func NewPendingApproval() *PendingApproval {
	return &PendingApproval{
		state:        StateIdle,
		ResponseChan: make(chan Decision, 1),
	}
}

// State returns the current approval state.
func (p *PendingApproval) State() ApprovalState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Respond delivers a decision to the in-flight flow. It returns false when
// no flow is pending or a decision was already delivered.
func (p *PendingApproval) Respond(d Decision) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePending {
		return false
	}
	select {
	case p.ResponseChan <- d:
		return true
	default:
		return false
	}
}

// Begin starts an approval flow and returns the decision. A timeout of
// zero or less means no deadline: the flow waits for ask, Respond or ctx.
// On timeout the request is rejected by default and ErrApprovalTimeout is
// returned alongside the rejecting decision.
func (p *PendingApproval) Begin(ctx context.Context, ask AskFunc, timeout time.Duration) (Decision, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return Decision{}, ErrApprovalPending
	}
	if p.ResponseChan == nil {
		p.ResponseChan = make(chan Decision, 1)
	}
	respCh := p.ResponseChan
	// Drop any stale response from a previous flow.
	select {
	case <-respCh:
	default:
	}
	p.state = StatePending
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StatePending {
			p.state = StateIdle
		}
		p.mu.Unlock()
	}()

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	askErrCh := make(chan error, 1)
	if ask != nil {
		go func() {
			d, err := ask(ctx)
			if err != nil {
				askErrCh <- err
				return
			}
			select {
			case respCh <- d:
			case <-ctx.Done():
			}
		}()
	}

	select {
	case d := <-respCh:
		return d, nil
	case err := <-askErrCh:
		if ctx.Err() == nil {
			return Decision{}, err
		}
		return p.finish(ctx)
	case <-ctx.Done():
		return p.finish(ctx)
	}
}

func (p *PendingApproval) finish(ctx context.Context) (Decision, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.mu.Lock()
		p.state = StateTimeout
		p.mu.Unlock()
		return Decision{Approved: false, Reason: "approval timed out"}, ErrApprovalTimeout
	}
	return Decision{}, ctx.Err()
}
