package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
)

// Target is the part of *tool.Registry a reload updates.
type Target interface {
	SetOverrides(o tool.Overrides)
	SetGroupEnabled(name string, enabled bool) error
}

// Apply pushes the permission overrides and group switches of cfg to t.
// Groups that are not registered yet are returned, not treated as errors:
// script groups appear only once their directory has been loaded.
func Apply(t Target, cfg *config.Config) (missing []string) {
	t.SetOverrides(cfg.Permissions)
	for _, name := range cfg.GroupNames() {
		if err := t.SetGroupEnabled(name, cfg.Groups[name].Enabled); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Handler re-reads the configuration file and applies it.
type Handler struct {
	path   string
	target Target
	logger *slog.Logger
	audit  *security.AuditLogger

	mu      sync.Mutex
	current *config.Config
}

// NewHandler creates a handler starting from the already-applied cfg.
// audit may be nil.
func NewHandler(path string, cfg *config.Config, target Target, logger *slog.Logger, audit *security.AuditLogger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{path: path, current: cfg, target: target, logger: logger, audit: audit}
}

// Current returns the last successfully applied configuration.
func (h *Handler) Current() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Reload loads and validates the file, then applies it. An invalid file
// leaves the running configuration untouched.
func (h *Handler) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}
	cfg, err := config.Load(h.path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = cfg
	h.mu.Unlock()

	missing := Apply(h.target, cfg)
	if len(missing) > 0 {
		h.logger.Debug("reload: groups not registered yet", "groups", missing)
	}
	if restart := restartSections(prev, cfg); len(restart) > 0 {
		h.logger.Warn("reload: some changes take effect on restart", "sections", restart)
	}

	if h.audit != nil {
		h.audit.Log(security.AuditEvent{
			Type:     security.EventConfigChange,
			Detail:   "configuration reloaded",
			Metadata: map[string]string{"path": h.path},
		})
	}
	h.logger.Info("configuration reloaded", "path", h.path)
	return nil
}

// restartSections names the top-level sections that changed but are only
// read at startup.
func restartSections(prev, next *config.Config) []string {
	if prev == nil {
		return nil
	}
	var out []string
	check := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	check("log", prev.Log != next.Log)
	check("results", prev.Results != next.Results)
	check("approval", prev.Approval != next.Approval)
	check("sandbox", prev.Sandbox != next.Sandbox)
	check("gateway", prev.Gateway != next.Gateway)
	check("audit", prev.Audit != next.Audit)
	check("scripts", prev.Scripts.Dir != next.Scripts.Dir || prev.Scripts.Watch != next.Scripts.Watch)
	check("provider", !sameProviders(prev, next))
	sort.Strings(out)
	return out
}

func sameProviders(prev, next *config.Config) bool {
	if len(prev.Provider.Chain) != len(next.Provider.Chain) {
		return false
	}
	for i := range prev.Provider.Chain {
		a, b := prev.Provider.Chain[i], next.Provider.Chain[i]
		if a.Name != b.Name || a.Type != b.Type {
			return false
		}
	}
	return true
}
