package gateway

import (
	"time"

	"github.com/flemzord/toolgate/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string

	// Token, when set, is required as a bearer token on every route
	// except /health.
	Token string

	Arguments       security.ArgumentLimits
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8420"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Execute and approval requests block on a human, so writes get a
	// generous bound.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
