package anthropic

import "time"

// defaultModel is the model used when none is specified.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultTimeout bounds a whole completion request.
const defaultTimeout = 60 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// defaults fills in zero-value fields.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}
