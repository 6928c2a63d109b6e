package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/security"
)

// ParseLevel maps a config level name to a slog level. Unknown names
// yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. Every record passes through the
// redactor, so secrets never reach w.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}
