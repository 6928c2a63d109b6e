// Package config handles YAML configuration loading, environment variable
// expansion, defaults and validation for toolgate.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tracing"
)

// Approval modes.
const (
	ApprovalTerminal = "terminal"
	ApprovalRemote   = "remote"
	ApprovalAuto     = "auto"
	ApprovalDeny     = "deny"
)

// Provider types.
const (
	ProviderAnthropic        = "anthropic"
	ProviderOpenAICompatible = "openai_compatible"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	Log      LogConfig      `yaml:"log"`
	Results  ResultsConfig  `yaml:"results"`
	Approval ApprovalConfig `yaml:"approval"`

	// Permissions overrides tool permissions by tool name. Both the
	// execution/result form and the legacy flag form are accepted.
	Permissions tool.Overrides `yaml:"permissions"`

	// Groups enables or disables tool groups by name. Groups not listed
	// keep their registration default.
	Groups map[string]GroupConfig `yaml:"groups"`

	Scripts  ScriptsConfig  `yaml:"scripts"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Provider ProviderConfig `yaml:"provider"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tracing  tracing.Config `yaml:"tracing"`
	Audit    AuditConfig    `yaml:"audit"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ResultsConfig configures the result pipeline and its cache.
type ResultsConfig struct {
	// Limit is the default character budget. Negative disables truncation.
	Limit int `yaml:"limit"`

	// CacheDir holds untruncated results. Empty disables the cache.
	CacheDir string `yaml:"cache_dir"`

	// Keep is how many cache files survive a prune.
	Keep int `yaml:"keep"`

	// PruneSchedule is a cron expression for periodic pruning. Empty
	// leaves pruning to the writes themselves.
	PruneSchedule string `yaml:"prune_schedule"`
}

// ApprovalConfig configures the approval checkpoints.
type ApprovalConfig struct {
	Mode string `yaml:"mode"`

	// Timeout bounds each prompt. Zero waits forever.
	Timeout time.Duration `yaml:"timeout"`

	// ModelReview asks the provider to clear calls before a human is asked.
	ModelReview bool `yaml:"model_review"`

	// Accessible switches the terminal prompt to plain line input.
	Accessible bool `yaml:"accessible"`

	// DecisionsDB persists "always" decisions. Empty keeps them in memory.
	DecisionsDB string `yaml:"decisions_db"`

	// ValidateArguments checks arguments against tool schemas.
	ValidateArguments bool `yaml:"validate_arguments"`
}

// GroupConfig is the per-group switch.
type GroupConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ScriptsConfig configures external script tools.
type ScriptsConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
	Timeout  time.Duration `yaml:"timeout"`

	// RescanSchedule reloads the directory on a cron schedule, for
	// filesystems without change notifications.
	RescanSchedule string `yaml:"rescan_schedule"`

	// Languages maps a file extension to its interpreter and parser
	// commands. Entries replace the built-in ones for the same extension.
	Languages map[string]LanguageConfig `yaml:"languages"`

	// Env is added to the sanitized environment of every script.
	Env map[string]string `yaml:"env"`
}

// LanguageConfig is the command line for one script language.
type LanguageConfig struct {
	Interpreter []string `yaml:"interpreter"`
	Parser      []string `yaml:"parser"`
}

// SandboxConfig configures the ToolCallScript sandbox.
type SandboxConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig lists the completion providers, tried in order.
type ProviderConfig struct {
	Cooldown time.Duration   `yaml:"cooldown"`
	Chain    []ProviderEntry `yaml:"chain"`
}

// ProviderEntry is one provider. Config is decoded by the provider type.
type ProviderEntry struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Config yaml.Node `yaml:"config"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Bind string `yaml:"bind"`

	// Token, when set, is required as a bearer token on /api routes.
	Token string `yaml:"token"`

	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
	Arguments security.ArgumentLimits  `yaml:"arguments"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	// Path is the JSONL file. Empty disables the audit log.
	Path string `yaml:"path"`
}
