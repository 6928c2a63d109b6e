// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/toolgate/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	NameFunc        func() string
	DescriptionFunc func() string
	SchemaFunc      func() json.RawMessage
	PermissionFunc  func() tool.Permission
	ExecuteFunc     func(ctx context.Context, args json.RawMessage) (tool.Output, error)

	mu           sync.Mutex
	ExecuteCalls int
	LastArgs     json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock-tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	if m.DescriptionFunc != nil {
		return m.DescriptionFunc()
	}
	return "a mock tool"
}

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.SchemaFunc != nil {
		return m.SchemaFunc()
	}
	return json.RawMessage(`{"type":"object"}`)
}

// DefaultPermission implements tool.Tool.
func (m *MockTool) DefaultPermission() tool.Permission {
	if m.PermissionFunc != nil {
		return m.PermissionFunc()
	}
	return tool.Permission{}
}

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.LastArgs = args
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return tool.Output{Data: "ok"}, nil
}

// Calls returns the number of Execute calls so far.
func (m *MockTool) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// MockExecutionApprover is a configurable mock for tool.ExecutionApprover.
// With no func set it approves everything.
type MockExecutionApprover struct {
	ApproveFunc func(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error)

	mu       sync.Mutex
	calls    int
	requests []tool.ExecutionRequest
}

// ApproveExecution implements tool.ExecutionApprover.
func (m *MockExecutionApprover) ApproveExecution(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, req)
	}
	return tool.Decision{Approved: true}, nil
}

// Calls returns the number of approval requests received.
func (m *MockExecutionApprover) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of the requests received.
func (m *MockExecutionApprover) Requests() []tool.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tool.ExecutionRequest(nil), m.requests...)
}

// MockResultApprover is a configurable mock for tool.ResultApprover.
// With no func set it approves everything.
type MockResultApprover struct {
	ApproveFunc func(ctx context.Context, req tool.ResultRequest) (tool.Decision, error)

	mu    sync.Mutex
	calls int
}

// ApproveResult implements tool.ResultApprover.
func (m *MockResultApprover) ApproveResult(ctx context.Context, req tool.ResultRequest) (tool.Decision, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, req)
	}
	return tool.Decision{Approved: true}, nil
}

// Calls returns the number of approval requests received.
func (m *MockResultApprover) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SimpleTool creates a minimal tool for testing with the given name and
// default permission. It echoes its "text" argument, or returns
// "executed: <name>" when there is none.
func SimpleTool(name string, perm tool.Permission) *MockTool {
	return &MockTool{
		NameFunc:        func() string { return name },
		DescriptionFunc: func() string { return "simple test tool: " + name },
		PermissionFunc:  func() tool.Permission { return perm },
		SchemaFunc: func() json.RawMessage {
			return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
		},
		ExecuteFunc: func(_ context.Context, args json.RawMessage) (tool.Output, error) {
			var in struct {
				Text *string `json:"text"`
			}
			_ = json.Unmarshal(args, &in)
			if in.Text != nil {
				return tool.Output{Data: *in.Text}, nil
			}
			return tool.Output{Data: "executed: " + name}, nil
		},
	}
}

// Interface guards.
var (
	_ tool.Tool              = (*MockTool)(nil)
	_ tool.ExecutionApprover = (*MockExecutionApprover)(nil)
	_ tool.ResultApprover    = (*MockResultApprover)(nil)
)
