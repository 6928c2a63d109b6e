// Package app assembles toolgate from its configuration and runs it as an
// HTTP gateway or an MCP stdio server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/cron"
	"github.com/flemzord/toolgate/internal/gateway"
	"github.com/flemzord/toolgate/internal/mcpserver"
	"github.com/flemzord/toolgate/internal/metrics"
	"github.com/flemzord/toolgate/internal/pipeline"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/reload"
	"github.com/flemzord/toolgate/internal/script"
	"github.com/flemzord/toolgate/internal/scripttool"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/store/sqlite"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tracing"
)

// Params configures Build.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called; when nothing is found the
	// defaults are used.
	ConfigPath string

	// Version is announced by the MCP server.
	Version string

	// LogOutput receives log records. Defaults to stderr, which keeps
	// stdout free for MCP traffic.
	LogOutput io.Writer

	// LogLevel and ApprovalMode override the configuration when set.
	LogLevel     string
	ApprovalMode string
}

// App is a fully wired toolgate instance.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger

	Registry    *tool.Registry
	Credentials *security.CredentialStore
	Redactor    *security.Redactor
	Audit       *security.AuditLogger
	Limiter     *security.RateLimiter
	Metrics     *metrics.Collector
	Tracer      trace.TracerProvider

	// Optional parts; nil when not configured.
	Providers *provider.Chain
	Cache     *pipeline.Cache
	Decisions *sqlite.DecisionStore
	Remote    *gateway.RemoteApprover
	Scripts   *scripttool.Watcher
	Reload    *reload.Handler

	Scheduler *cron.Scheduler
	version   string

	mu  sync.Mutex
	mcp *mcpserver.Server

	closers []func(context.Context) error
}

// LoadConfig resolves, loads and validates the configuration. The
// returned path is empty when the defaults are used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		switch {
		case errors.Is(err, ErrNoConfig):
			cfg := config.Defaults()
			return cfg, "", config.Validate(cfg)
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Build loads the configuration and wires every component. Background
// work (script watching, cron jobs, config polling) starts only in Serve
// or ServeMCP. Call Close when done.
func Build(ctx context.Context, p Params) (*App, error) {
	cfg, path, err := LoadConfig(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.LogLevel != "" {
		cfg.Log.Level = p.LogLevel
	}
	if p.ApprovalMode != "" {
		cfg.Approval.Mode = p.ApprovalMode
	}
	if p.LogOutput == nil {
		p.LogOutput = os.Stderr
	}

	a := &App{Config: cfg, ConfigPath: path, version: p.Version}
	if err := a.wire(ctx, p.LogOutput); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, logOut io.Writer) error {
	cfg := a.Config

	a.Credentials = security.NewCredentialStore()
	a.Credentials.SetFromEnv("TOOLGATE_GATEWAY_TOKEN")
	if cfg.Gateway.Token != "" {
		a.Credentials.Set("gateway_token", cfg.Gateway.Token)
	}
	a.Redactor = security.NewRedactor()
	a.Logger = NewLogger(cfg.Log, logOut, a.Redactor)

	if cfg.Audit.Path != "" {
		audit, err := security.OpenAuditFile(cfg.Audit.Path, a.Redactor)
		if err != nil {
			return err
		}
		a.Audit = audit
		a.closers = append(a.closers, func(context.Context) error { return audit.Close() })
	}
	a.Limiter = security.NewRateLimiter(cfg.Gateway.RateLimit)
	a.Metrics = metrics.New()

	tp, shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	a.Tracer = tp
	a.closers = append(a.closers, shutdown)

	if cfg.Results.CacheDir != "" {
		cache, err := pipeline.NewCache(pipeline.CacheConfig{
			Dir:    cfg.Results.CacheDir,
			Keep:   cfg.Results.Keep,
			Logger: a.Logger,
		})
		if err != nil {
			return err
		}
		a.Cache = cache
		a.closers = append(a.closers, func(context.Context) error { cache.Wait(); return nil })
	}
	pipe := pipeline.New(pipeline.Config{DefaultLimit: cfg.Results.Limit, Cache: a.Cache, Logger: a.Logger})

	a.Providers, err = buildProviders(cfg.Provider, a.Credentials, a.Logger)
	if err != nil {
		return err
	}
	var completer provider.Completer
	if a.Providers != nil {
		completer = a.Providers
	}
	// Keys discovered while building providers are redacted from here on.
	a.Redactor.SyncCredentials(a.Credentials)

	if cfg.Approval.DecisionsDB != "" {
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Approval.DecisionsDB})
		if err != nil {
			return err
		}
		a.Decisions = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}

	approver, remote := buildApprover(cfg.Approval.Mode, cfg.Approval, completer, a.Metrics, a.Logger)
	a.Remote = remote

	opts := []tool.Option{
		tool.WithLogger(a.Logger),
		tool.WithPipeline(pipe),
		tool.WithOverrides(cfg.Permissions),
		tool.WithExecutionApprover(approver),
		tool.WithResultApprover(approver),
		tool.WithApprovalTimeout(cfg.Approval.Timeout),
		tool.WithArgumentValidation(cfg.Approval.ValidateArguments),
		tool.WithObserver(a.Metrics),
		tool.WithAuditLogger(a.Audit),
		tool.WithRateLimiter(a.Limiter),
		tool.WithTracerProvider(tp),
	}
	if a.Decisions != nil {
		opts = append(opts, tool.WithDecisionStore(a.Decisions))
	}
	a.Registry = tool.NewRegistry(opts...)

	if cfg.Sandbox.Enabled {
		sandbox := script.New(a.Registry, completer,
			script.WithLogger(a.Logger),
			script.WithDefaultTimeout(cfg.Sandbox.Timeout),
		)
		if err := a.Registry.RegisterTool(sandbox); err != nil {
			return err
		}
	}

	if cfg.Scripts.Dir != "" {
		a.wireScripts(ctx)
	}

	if missing := reload.Apply(a.Registry, cfg); len(missing) > 0 {
		a.Logger.Warn("groups in config are not registered", "groups", strings.Join(missing, ","))
	}
	if a.ConfigPath != "" {
		a.Reload = reload.NewHandler(a.ConfigPath, cfg, a.Registry, a.Logger, a.Audit)
	}

	return a.wireScheduler()
}

func (a *App) wireScripts(ctx context.Context) {
	cfg := a.Config.Scripts
	languages := scripttool.DefaultLanguages()
	for ext, l := range cfg.Languages {
		languages[ext] = scripttool.Language{Interpreter: l.Interpreter, Parser: l.Parser}
	}
	runner := scripttool.NewRunner(scripttool.RunnerConfig{
		Languages:   languages,
		Timeout:     cfg.Timeout,
		Env:         cfg.Env,
		Credentials: a.Credentials,
		Logger:      a.Logger,
	})
	loader := scripttool.NewLoader(scripttool.LoaderConfig{Dir: cfg.Dir, Languages: languages, Logger: a.Logger}, runner)
	a.Scripts = scripttool.NewWatcher(loader, runner, a.Registry, cfg.Debounce, a.Logger)
	a.Scripts.OnReload = a.scriptsReloaded

	if _, err := a.Scripts.Reload(ctx); err != nil {
		a.Logger.Warn("scripts: initial load incomplete", "dir", cfg.Dir, "error", err)
	}
}

// scriptsReloaded re-applies group switches, since reloaded script groups
// start disabled, and refreshes the MCP tool list.
func (a *App) scriptsReloaded(_ []scripttool.ParsedModule, err error) {
	a.Metrics.ObserveScriptReload(err)
	cfg := a.Config
	if a.Reload != nil {
		cfg = a.Reload.Current()
	}
	for _, name := range cfg.GroupNames() {
		_ = a.Registry.SetGroupEnabled(name, cfg.Groups[name].Enabled)
	}
	a.syncMCP()
}

func (a *App) syncMCP() {
	a.mu.Lock()
	srv := a.mcp
	a.mu.Unlock()
	if srv != nil {
		srv.Sync()
	}
}

func (a *App) wireScheduler() error {
	a.Scheduler = cron.NewScheduler(a.Logger)
	if a.Cache != nil && a.Config.Results.PruneSchedule != "" {
		if err := a.Scheduler.RegisterJob(&cron.CachePruneJob{
			Cache:        a.Cache,
			Logger:       a.Logger,
			ScheduleExpr: a.Config.Results.PruneSchedule,
			OnPruned:     a.Metrics.AddPrunedFiles,
		}); err != nil {
			return err
		}
	}
	if a.Scripts != nil && a.Config.Scripts.RescanSchedule != "" {
		rescan := cron.ReloadFunc(func(ctx context.Context) error {
			_, err := a.Scripts.Reload(ctx)
			return err
		})
		if err := a.Scheduler.RegisterJob(&cron.ScriptRescanJob{
			Scripts:      rescan,
			ScheduleExpr: a.Config.Scripts.RescanSchedule,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Gateway builds the HTTP gateway for this app.
func (a *App) Gateway() *gateway.Gateway {
	opts := []gateway.Option{
		gateway.WithLogger(a.Logger),
		gateway.WithMetricsHandler(a.Metrics.Handler()),
		gateway.WithAuditLogger(a.Audit),
		gateway.WithRateLimiter(a.Limiter),
	}
	if a.Providers != nil {
		opts = append(opts, gateway.WithProviders(a.Providers))
	}
	if a.Remote != nil {
		opts = append(opts, gateway.WithApprovals(a.Remote))
	}
	token := a.Config.Gateway.Token
	if token == "" {
		token, _ = a.Credentials.Get("TOOLGATE_GATEWAY_TOKEN")
	}
	return gateway.New(gateway.Config{
		Bind:      a.Config.Gateway.Bind,
		Token:     token,
		Arguments: a.Config.Gateway.Arguments,
	}, a.Registry, opts...)
}

// MCP returns the MCP server for this app, creating it on first use.
func (a *App) MCP() *mcpserver.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mcp == nil {
		a.mcp = mcpserver.New(a.Registry, a.version, mcpserver.WithLogger(a.Logger))
	}
	return a.mcp
}

// CacheDir returns the configured cache directory, or an error when the
// cache is disabled.
func (a *App) CacheDir() (string, error) {
	if a.Cache == nil {
		return "", errors.New("results.cache_dir is not configured")
	}
	return filepath.Clean(a.Cache.Dir()), nil
}

// Close releases every resource opened by Build, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: close: %w", err)
	}
	return nil
}
