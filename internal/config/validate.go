package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// maxSandboxTimeout mirrors the sandbox's own upper bound.
const maxSandboxTimeout = 5 * time.Minute

// Validate checks c and returns every problem found, joined.
func Validate(c *Config) error {
	var errs []error

	if c.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if c.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", c.Version))
	}

	errs = append(errs, validateLog(c.Log)...)
	errs = append(errs, validateResults(c.Results)...)
	errs = append(errs, validateApproval(c.Approval)...)
	errs = append(errs, validatePermissions(c)...)
	errs = append(errs, validateScripts(c.Scripts)...)
	errs = append(errs, validateSandbox(c.Sandbox)...)
	errs = append(errs, validateProviders(c.Provider)...)
	errs = append(errs, validateGateway(c.Gateway, c.Approval.Mode)...)

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q must be debug, info, warn or error", l.Level))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", l.Format))
	}
	return errs
}

func validateResults(r ResultsConfig) []error {
	var errs []error
	if r.Keep < 0 {
		errs = append(errs, fmt.Errorf("config: results.keep must be non-negative, got %d", r.Keep))
	}
	if r.PruneSchedule != "" {
		if r.CacheDir == "" {
			errs = append(errs, errors.New("config: results.prune_schedule requires results.cache_dir"))
		}
		if _, err := cron.ParseStandard(r.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: results.prune_schedule: %w", err))
		}
	}
	return errs
}

func validateApproval(a ApprovalConfig) []error {
	var errs []error
	switch a.Mode {
	case ApprovalTerminal, ApprovalRemote, ApprovalAuto, ApprovalDeny:
	default:
		errs = append(errs, fmt.Errorf("config: approval.mode %q must be terminal, remote, auto or deny", a.Mode))
	}
	if a.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: approval.timeout must be non-negative, got %s", a.Timeout))
	}
	return errs
}

func validatePermissions(c *Config) []error {
	var errs []error
	for name, spec := range c.Permissions {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("config: permissions: empty tool name"))
			continue
		}
		if err := spec.Permission.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: permissions.%s: %w", name, err))
		}
	}
	return errs
}

func validateScripts(s ScriptsConfig) []error {
	var errs []error
	if s.Watch && s.Dir == "" {
		errs = append(errs, errors.New("config: scripts.watch requires scripts.dir"))
	}
	if s.RescanSchedule != "" {
		if s.Dir == "" {
			errs = append(errs, errors.New("config: scripts.rescan_schedule requires scripts.dir"))
		}
		if _, err := cron.ParseStandard(s.RescanSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: scripts.rescan_schedule: %w", err))
		}
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: scripts.timeout must be non-negative, got %s", s.Timeout))
	}
	for ext, lang := range s.Languages {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("config: scripts.languages: extension %q must start with a dot", ext))
		}
		if len(lang.Interpreter) == 0 {
			errs = append(errs, fmt.Errorf("config: scripts.languages.%s: interpreter is required", ext))
		}
	}
	return errs
}

func validateSandbox(s SandboxConfig) []error {
	if s.Timeout < 0 || s.Timeout > maxSandboxTimeout {
		return []error{fmt.Errorf("config: sandbox.timeout %s must be between 0 and %s", s.Timeout, maxSandboxTimeout)}
	}
	return nil
}

func validateProviders(p ProviderConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(p.Chain))
	for i, e := range p.Chain {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("config: provider.chain[%d]: name is required", i))
		} else if seen[e.Name] {
			errs = append(errs, fmt.Errorf("config: provider.chain[%d]: duplicate name %q", i, e.Name))
		}
		seen[e.Name] = true
		switch e.Type {
		case ProviderAnthropic, ProviderOpenAICompatible:
		default:
			errs = append(errs, fmt.Errorf("config: provider.chain[%d]: unknown type %q", i, e.Type))
		}
	}
	if p.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("config: provider.cooldown must be non-negative, got %s", p.Cooldown))
	}
	return errs
}

func validateGateway(g GatewayConfig, mode string) []error {
	var errs []error
	if mode == ApprovalRemote && g.Bind == "" {
		errs = append(errs, errors.New("config: approval.mode remote requires gateway.bind"))
	}
	if g.RateLimit.ToolCallsPerMin < 0 || g.RateLimit.RequestsPerMin < 0 {
		errs = append(errs, errors.New("config: gateway.rate_limit values must be non-negative"))
	}
	if g.Arguments.MaxBytes < 0 || g.Arguments.MaxDepth < 0 {
		errs = append(errs, errors.New("config: gateway.arguments limits must be non-negative"))
	}
	return errs
}
