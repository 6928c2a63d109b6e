// Package mcpserver exposes the enabled tools of a registry as a Model
// Context Protocol server. Every call goes through the registry, so
// permissions, approvals and the result pipeline apply unchanged.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/toolgate/internal/tool"
)

// Name is the server name announced during initialization.
const Name = "toolgate"

// Registry is the part of *tool.Registry the server needs.
type Registry interface {
	EnabledDefinitions() []tool.Definition
	ToolRules() string
	Execute(ctx context.Context, name string, args json.RawMessage, opts tool.ExecuteOptions) tool.Result
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wraps an MCP server bound to a registry.
type Server struct {
	registry Registry
	logger   *slog.Logger
	mcp      *server.MCPServer

	mu         sync.Mutex
	registered map[string]bool
}

// New creates a server and registers the currently enabled tools. The
// aggregated group rules become the server instructions.
func New(reg Registry, version string, opts ...Option) *Server {
	s := &Server{
		registry:   reg,
		logger:     slog.Default(),
		registered: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	serverOpts := []server.ServerOption{server.WithToolCapabilities(true)}
	if rules := reg.ToolRules(); rules != "" {
		serverOpts = append(serverOpts, server.WithInstructions(rules))
	}
	s.mcp = server.NewMCPServer(Name, version, serverOpts...)
	s.Sync()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Sync brings the advertised tool list in line with the registry: enabled
// tools are (re)added and tools no longer enabled are removed. Call it
// after scripts reload or groups change.
func (s *Server) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool)
	for _, d := range s.registry.EnabledDefinitions() {
		current[d.Name] = true
		schema := d.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(d.Name, d.Description, schema), s.handler(d.Name))
	}

	var stale []string
	for name := range s.registered {
		if !current[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.mcp.DeleteTools(stale...)
	}
	s.registered = current
	s.logger.Debug("mcp: tools synced", "tools", len(current), "removed", len(stale))
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := json.RawMessage(`{}`)
		if raw := req.GetRawArguments(); raw != nil {
			b, err := json.Marshal(raw)
			if err != nil {
				return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
			}
			args = b
		}

		res := s.registry.Execute(ctx, name, args, tool.ExecuteOptions{})
		s.logger.Debug("mcp: tool call", "tool", name, "status", res.Status)
		if !res.OK() {
			return mcp.NewToolResultError(res.FinalText), nil
		}
		out := mcp.NewToolResultText(res.FinalText)
		out.IsError = res.IsError
		return out, nil
	}
}

// ServeStdio serves newline-delimited JSON-RPC on in and out until ctx
// ends or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}
