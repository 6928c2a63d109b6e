package security

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventApproval     EventType = "approval"
	EventRateLimit    EventType = "rate_limit"
	EventAuthFailure  EventType = "auth_failure"
	EventConfigChange EventType = "config_change"
)

// AuditEvent is a single audit log entry. CallID ties together the events
// of one tool invocation.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	CallID    string            `json:"call_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. If nil, events only go to
	// OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now.
	Now func() time.Time
}

// AuditLogger writes audit events as JSONL.
type AuditLogger struct {
	mu          sync.Mutex
	writer      io.Writer
	closer      io.Closer
	redactor    *Redactor
	onEvent     func(AuditEvent)
	now         func() time.Time
	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// OpenAuditFile appends to the JSONL file at path, creating it and its
// directory as needed. Close releases the file.
func OpenAuditFile(path string, redactor *Redactor) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	l := NewAuditLogger(AuditLoggerConfig{Writer: f, Redactor: redactor})
	l.closer = f
	return l, nil
}

// Log records an event. The timestamp is set here. The caller's Metadata
// map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.now()
	if len(event.Metadata) > 0 {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
		}
	}
}

// WriteErrors returns how many events failed to reach the writer.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}

// Close closes the underlying file when the logger owns one.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	l.writer = nil
	return err
}
