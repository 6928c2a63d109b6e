package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/flemzord/toolgate/internal/store/sqlite"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tool/tooltest"
)

func openStore(t *testing.T, path string) *sqlite.DecisionStore {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDecisionStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "decisions.db"))
	key := tool.NewDecisionKey("write_file", json.RawMessage(`{"b":2,"a":1}`))

	if _, ok, err := s.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := s.Remember(ctx, key, tool.Decision{Approved: true, Persist: true}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	// Same arguments in another key order hit the same row.
	other := tool.NewDecisionKey("write_file", json.RawMessage(`{"a":1,"b":2}`))
	d, ok, err := s.Lookup(ctx, other)
	if err != nil || !ok || !d.Approved {
		t.Fatalf("Lookup = %+v, %v, %v", d, ok, err)
	}

	if err := s.Remember(ctx, key, tool.Decision{Reason: "changed my mind"}); err != nil {
		t.Fatalf("Remember (update): %v", err)
	}
	d, _, _ = s.Lookup(ctx, key)
	if d.Approved || d.Reason != "changed my mind" {
		t.Errorf("updated decision = %+v", d)
	}
}

func TestDecisionStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "decisions.db")
	key := tool.NewDecisionKey("deploy", json.RawMessage(`{"env":"prod"}`))

	s, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Remember(ctx, key, tool.Decision{Approved: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = openStore(t, path)
	if _, ok, err := s.Lookup(ctx, key); err != nil || !ok {
		t.Fatalf("decision lost after reopen: ok=%v err=%v", ok, err)
	}
}

func TestDecisionStoreListAndForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "decisions.db"))
	for _, k := range []tool.DecisionKey{
		tool.NewDecisionKey("b_tool", json.RawMessage(`{}`)),
		tool.NewDecisionKey("a_tool", json.RawMessage(`{"x":1}`)),
		tool.NewDecisionKey("a_tool", json.RawMessage(`{"x":2}`)),
	} {
		if err := s.Remember(ctx, k, tool.Decision{Approved: true}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Key.ToolName != "a_tool" || list[2].Key.ToolName != "b_tool" {
		t.Fatalf("List = %+v", list)
	}
	if list[0].UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	n, err := s.Forget(ctx, "a_tool")
	if err != nil || n != 2 {
		t.Fatalf("Forget(a_tool) = %d, %v", n, err)
	}
	n, err = s.Forget(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("Forget(all) = %d, %v", n, err)
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	if _, err := sqlite.Open(context.Background(), sqlite.Config{}); err == nil {
		t.Error("expected an error for an empty path")
	}
	if _, err := sqlite.Open(context.Background(), sqlite.Config{Path: "x.db", BusyTimeout: -1}); err == nil {
		t.Error("expected an error for a negative busy timeout")
	}
}

func TestRegistryUsesDurableDecisions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.db")
	store := openStore(t, path)

	approver := &tooltest.MockExecutionApprover{
		ApproveFunc: func(context.Context, tool.ExecutionRequest) (tool.Decision, error) {
			return tool.Decision{Approved: true, Persist: true}, nil
		},
	}
	newRegistry := func() *tool.Registry {
		reg := tool.NewRegistry(tool.WithDecisionStore(store), tool.WithExecutionApprover(approver))
		if err := reg.RegisterTool(tooltest.SimpleTool("deploy", tool.Permission{Execution: tool.ExecAskAlways})); err != nil {
			t.Fatal(err)
		}
		return reg
	}

	args := json.RawMessage(`{"text":"prod"}`)
	if res := newRegistry().Execute(ctx, "deploy", args, tool.ExecuteOptions{}); !res.OK() {
		t.Fatalf("first run: %+v", res)
	}
	// A fresh registry, as after a restart, reuses the stored decision.
	if res := newRegistry().Execute(ctx, "deploy", args, tool.ExecuteOptions{}); !res.OK() {
		t.Fatalf("second run: %+v", res)
	}
	if approver.Calls() != 1 {
		t.Errorf("approver called %d times, want 1", approver.Calls())
	}
}
