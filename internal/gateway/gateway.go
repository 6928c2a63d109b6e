// Package gateway serves the tool registry over HTTP: listing, direct
// execution, remote approvals, health and prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
)

// Registry is the part of *tool.Registry the gateway serves.
type Registry interface {
	Definitions() []tool.Definition
	IsToolEnabled(name string) bool
	EffectivePermission(name string) (tool.Permission, error)
	Groups() []tool.GroupInfo
	ToolRules() string
	Execute(ctx context.Context, name string, args json.RawMessage, opts tool.ExecuteOptions) tool.Result
}

// HealthReporter reports provider availability. *provider.Chain
// implements it.
type HealthReporter interface {
	Status() []provider.Status
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithProviders reports provider health on /health and /status.
func WithProviders(h HealthReporter) Option {
	return func(g *Gateway) { g.providers = h }
}

// WithApprovals serves the remote approval endpoints.
func WithApprovals(a *RemoteApprover) Option {
	return func(g *Gateway) { g.approvals = a }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(g *Gateway) { g.metricsHandler = h }
}

// WithAuditLogger records authentication failures.
func WithAuditLogger(a *security.AuditLogger) Option {
	return func(g *Gateway) { g.audit = a }
}

// WithRateLimiter bounds execute requests using the "request" bucket.
func WithRateLimiter(l *security.RateLimiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// Gateway is the HTTP front of a tool registry.
type Gateway struct {
	config    Config
	registry  Registry
	logger    *slog.Logger
	metrics   *Metrics
	startedAt time.Time

	providers      HealthReporter
	approvals      *RemoteApprover
	metricsHandler http.Handler
	audit          *security.AuditLogger
	limiter        *security.RateLimiter

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a gateway for registry. It does not listen until Start.
func New(cfg Config, registry Registry, opts ...Option) *Gateway {
	cfg.defaults()
	g := &Gateway{
		config:    cfg,
		registry:  registry,
		logger:    slog.Default(),
		metrics:   &Metrics{},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate checks the bind address.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	return nil
}

// Handler returns the routed handler without listening.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.startedAt = time.Now()
	g.addr = ln.Addr()
	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	srv := g.server
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.server = nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
