package gateway

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flemzord/toolgate/internal/tool"
)

// ErrUnknownApproval is returned when resolving an ID that is not pending.
var ErrUnknownApproval = errors.New("gateway: unknown or already resolved approval")

// PendingRequest is an approval waiting for a remote decision.
type PendingRequest struct {
	ID          string           `json:"id"`
	CallID      string           `json:"call_id"`
	Checkpoint  tool.Checkpoint  `json:"checkpoint"`
	ToolName    string           `json:"tool_name"`
	Description string           `json:"description,omitempty"`
	Arguments   json.RawMessage  `json:"arguments,omitempty"`
	Permission  *tool.Permission `json:"permission,omitempty"`
	Data        any              `json:"data,omitempty"`
	IsError     bool             `json:"is_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type pendingEntry struct {
	req      PendingRequest
	decision chan tool.Decision
}

// RemoteApprover is an execution and result approver whose requests are
// listed and resolved over HTTP. Each call blocks until Resolve delivers
// a decision or its context ends.
type RemoteApprover struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	onChange func(n int)
	now      func() time.Time
}

// RemoteOption configures a RemoteApprover.
type RemoteOption func(*RemoteApprover)

// WithPendingGauge is called with the number of open requests after every
// change. internal/metrics.Collector.SetPendingApprovals fits it.
func WithPendingGauge(fn func(n int)) RemoteOption {
	return func(a *RemoteApprover) { a.onChange = fn }
}

// NewRemoteApprover creates an approver with no pending requests.
func NewRemoteApprover(opts ...RemoteOption) *RemoteApprover {
	a := &RemoteApprover{
		pending: make(map[string]*pendingEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Interface guards.
var (
	_ tool.ExecutionApprover = (*RemoteApprover)(nil)
	_ tool.ResultApprover    = (*RemoteApprover)(nil)
)

// ApproveExecution implements tool.ExecutionApprover.
func (a *RemoteApprover) ApproveExecution(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error) {
	perm := req.Permission
	return a.wait(ctx, PendingRequest{
		CallID:      req.ID,
		Checkpoint:  tool.CheckpointExecution,
		ToolName:    req.ToolName,
		Description: req.Description,
		Arguments:   req.Arguments,
		Permission:  &perm,
	})
}

// ApproveResult implements tool.ResultApprover.
func (a *RemoteApprover) ApproveResult(ctx context.Context, req tool.ResultRequest) (tool.Decision, error) {
	return a.wait(ctx, PendingRequest{
		CallID:     req.ID,
		Checkpoint: tool.CheckpointResult,
		ToolName:   req.ToolName,
		Arguments:  req.Arguments,
		Data:       req.Data,
		IsError:    req.IsError,
	})
}

func (a *RemoteApprover) wait(ctx context.Context, req PendingRequest) (tool.Decision, error) {
	req.ID = uuid.NewString()
	req.CreatedAt = a.now()
	entry := &pendingEntry{req: req, decision: make(chan tool.Decision, 1)}

	a.mu.Lock()
	a.pending[req.ID] = entry
	n := len(a.pending)
	a.mu.Unlock()
	a.notify(n)

	defer a.remove(req.ID)

	select {
	case d := <-entry.decision:
		return d, nil
	case <-ctx.Done():
		return tool.Decision{}, ctx.Err()
	}
}

func (a *RemoteApprover) remove(id string) {
	a.mu.Lock()
	_, ok := a.pending[id]
	delete(a.pending, id)
	n := len(a.pending)
	a.mu.Unlock()
	if ok {
		a.notify(n)
	}
}

func (a *RemoteApprover) notify(n int) {
	if a.onChange != nil {
		a.onChange(n)
	}
}

// Pending lists open requests, oldest first.
func (a *RemoteApprover) Pending() []PendingRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PendingRequest, 0, len(a.pending))
	for _, e := range a.pending {
		out = append(out, e.req)
	}
	slices.SortFunc(out, func(x, y PendingRequest) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out
}

// Len returns the number of open requests.
func (a *RemoteApprover) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Resolve delivers d to the request with the given ID. The first decision
// wins; later ones return ErrUnknownApproval.
func (a *RemoteApprover) Resolve(id string, d tool.Decision) error {
	a.mu.Lock()
	entry, ok := a.pending[id]
	n := len(a.pending)
	if ok {
		delete(a.pending, id)
		n--
	}
	a.mu.Unlock()
	if !ok {
		return ErrUnknownApproval
	}
	a.notify(n)
	entry.decision <- d
	return nil
}

func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.approvals.Pending())
	}
}

// resolveRequest is the body of POST /api/approvals/{id}.
type resolveRequest struct {
	Approved *bool  `json:"approved"`
	Persist  bool   `json:"persist,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (g *Gateway) handleResolveApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in resolveRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
		if err := dec.Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		if in.Approved == nil {
			writeError(w, http.StatusBadRequest, `"approved" is required`)
			return
		}

		id := chi.URLParam(r, "id")
		d := tool.Decision{Approved: *in.Approved, Persist: in.Persist, Reason: in.Reason}
		if err := g.approvals.Resolve(id, d); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		g.logger.Info("gateway: approval resolved", "id", id, "approved", d.Approved)
		w.WriteHeader(http.StatusNoContent)
	}
}
