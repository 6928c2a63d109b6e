package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tool/tooltest"
)

// waitPending polls until n requests are open.
func waitPending(t *testing.T, a *RemoteApprover, n int) []PendingRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := a.Pending(); len(p) == n {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending approvals (have %d)", n, a.Len())
	return nil
}

type gauge struct {
	mu   sync.Mutex
	seen []int
}

func (g *gauge) set(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, n)
}

func (g *gauge) last() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.seen) == 0 {
		return -1
	}
	return g.seen[len(g.seen)-1]
}

func TestRemoteApprover_Resolve(t *testing.T) {
	t.Parallel()

	var g gauge
	a := NewRemoteApprover(WithPendingGauge(g.set))

	type answer struct {
		d   tool.Decision
		err error
	}
	done := make(chan answer, 1)
	go func() {
		d, err := a.ApproveExecution(context.Background(), tool.ExecutionRequest{
			ID:        "call-1",
			ToolName:  "shell",
			Arguments: json.RawMessage(`{"cmd":"ls"}`),
		})
		done <- answer{d, err}
	}()

	p := waitPending(t, a, 1)
	if p[0].CallID != "call-1" || p[0].Checkpoint != tool.CheckpointExecution || p[0].ID == "" {
		t.Errorf("pending = %+v", p[0])
	}
	if g.last() != 1 {
		t.Errorf("gauge = %d, want 1", g.last())
	}

	if err := a.Resolve(p[0].ID, tool.Decision{Approved: true, Persist: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := <-done
	if got.err != nil || !got.d.Approved || !got.d.Persist {
		t.Errorf("decision = %+v, err = %v", got.d, got.err)
	}
	if err := a.Resolve(p[0].ID, tool.Decision{}); !errors.Is(err, ErrUnknownApproval) {
		t.Errorf("second Resolve: got %v", err)
	}
	if a.Len() != 0 || g.last() != 0 {
		t.Errorf("len = %d, gauge = %d", a.Len(), g.last())
	}
}

func TestRemoteApprover_ContextEnds(t *testing.T) {
	t.Parallel()

	a := NewRemoteApprover()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := a.ApproveResult(ctx, tool.ResultRequest{ID: "call-2", ToolName: "read", Data: "secret"})
		errc <- err
	}()

	p := waitPending(t, a, 1)
	if p[0].Checkpoint != tool.CheckpointResult || p[0].Data != "secret" {
		t.Errorf("pending = %+v", p[0])
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if a.Len() != 0 {
		t.Errorf("request still pending after cancel")
	}
}

func TestRemoteApprovals_OverHTTP(t *testing.T) {
	t.Parallel()

	approver := NewRemoteApprover()
	reg := newTestRegistry(t, tool.WithExecutionApprover(approver))
	gated := tooltest.SimpleTool("deploy", tool.Permission{Execution: tool.ExecAskAlways, Result: tool.ResultNever})
	if err := reg.RegisterTool(gated); err != nil {
		t.Fatal(err)
	}
	srv := newTestGateway(t, Config{Token: "tok"}, reg, WithApprovals(approver))

	run := func() chan tool.Result {
		out := make(chan tool.Result, 1)
		go func() {
			resp := do(t, http.MethodPost, srv.URL+"/api/tools/deploy/execute", "tok", `{"text":"v2"}`)
			var res tool.Result
			_ = json.NewDecoder(resp.Body).Decode(&res)
			out <- res
		}()
		return out
	}

	// Approve the first call.
	first := run()
	waitPending(t, approver, 1)
	resp := do(t, http.MethodGet, srv.URL+"/api/approvals", "tok", "")
	var listed []PendingRequest
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ToolName != "deploy" {
		t.Fatalf("listed = %+v", listed)
	}
	resp = do(t, http.MethodPost, srv.URL+"/api/approvals/"+listed[0].ID, "tok", `{"approved":true}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("resolve code = %d", resp.StatusCode)
	}
	if res := <-first; res.Status != tool.StatusSuccess || res.Data != "v2" {
		t.Errorf("first = %+v", res)
	}

	// Reject the second.
	second := run()
	p := waitPending(t, approver, 1)
	do(t, http.MethodPost, srv.URL+"/api/approvals/"+p[0].ID, "tok", `{"approved":false,"reason":"not today"}`)
	if res := <-second; res.Status != tool.StatusExecutionRejected || res.RejectReason != "not today" {
		t.Errorf("second = %+v", res)
	}
	if gated.Calls() != 1 {
		t.Errorf("tool ran %d times, want 1", gated.Calls())
	}
}

func TestResolveApproval_BadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestGateway(t, Config{}, newTestRegistry(t), WithApprovals(NewRemoteApprover()))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing approved", `{"reason":"x"}`, http.StatusBadRequest},
		{"unknown id", `{"approved":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := do(t, http.MethodPost, srv.URL+"/api/approvals/nope", "", tt.body)
		if resp.StatusCode != tt.code {
			t.Errorf("%s: code = %d, want %d", tt.name, resp.StatusCode, tt.code)
		}
	}
}

func TestApprovalRoutesAbsentWithoutApprover(t *testing.T) {
	t.Parallel()

	srv := newTestGateway(t, Config{}, newTestRegistry(t))
	if resp := do(t, http.MethodGet, srv.URL+"/api/approvals", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("code = %d, want 404", resp.StatusCode)
	}
}
