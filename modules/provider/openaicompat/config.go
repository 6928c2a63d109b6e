package openaicompat

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	BaseURL   string            `yaml:"base_url"`
	APIKey    string            `yaml:"api_key"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Model     string            `yaml:"model"`
	MaxTokens int               `yaml:"max_tokens"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
}

var (
	// ErrAuthentication is returned for 401/403 responses.
	ErrAuthentication = errors.New("provider.openai_compatible: authentication failed")

	errConfig = errors.New("provider.openai_compatible")
)

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", errConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base_url is not a valid URL: %w", errConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base_url scheme must be http or https, got %q", errConfig, u.Scheme)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", errConfig)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", errConfig)
	}
	return nil
}
