// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/flemzord/toolgate/internal/security"
)

// NewTestRedactor returns a Redactor with no patterns, so test strings that
// look like API keys pass through untouched.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestCredentialStore returns a store holding the given key/value pairs.
// It panics on an odd number of arguments.
func NewTestCredentialStore(kvs ...string) *security.CredentialStore {
	if len(kvs)%2 != 0 {
		panic("securitytest: NewTestCredentialStore requires key, value pairs")
	}
	store := security.NewCredentialStore()
	for i := 0; i < len(kvs); i += 2 {
		store.Set(kvs[i], kvs[i+1])
	}
	return store
}

// AuditRecorder collects audit events in memory.
type AuditRecorder struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

// NewTestAuditLogger returns an AuditLogger that records into the
// returned recorder.
func NewTestAuditLogger() (*security.AuditLogger, *AuditRecorder) {
	rec := &AuditRecorder{}
	logger := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: rec.record})
	return logger, rec
}

func (r *AuditRecorder) record(e security.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *AuditRecorder) Events() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]security.AuditEvent(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *AuditRecorder) Types() []security.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]security.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
