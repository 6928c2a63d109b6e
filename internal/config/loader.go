package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Defaults returns the configuration used when a field is not set.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Log:     LogConfig{Level: "info", Format: "text"},
		Results: ResultsConfig{Keep: 100},
		Approval: ApprovalConfig{
			Mode: ApprovalTerminal,
		},
		Scripts: ScriptsConfig{
			Debounce: 300 * time.Millisecond,
			Timeout:  60 * time.Second,
		},
		Sandbox: SandboxConfig{
			Enabled: true,
			Timeout: 60 * time.Second,
		},
		Provider: ProviderConfig{Cooldown: 30 * time.Second},
		Gateway:  GatewayConfig{Bind: "127.0.0.1:8420"},
	}
}

// Load reads a YAML configuration file over Defaults, expands environment
// variables and resolves relative paths against the file's directory.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.ResolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// Parse decodes raw YAML over Defaults. Unknown fields are rejected.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("expanding variables: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// It reports every variable that has neither a value nor a default.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}
		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
