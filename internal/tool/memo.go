package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// DecisionKey identifies a remembered approval: a tool name plus the
// canonical JSON encoding of its arguments.
type DecisionKey struct {
	ToolName string
	Args     string
}

// String returns the key in "tool:args" form.
func (k DecisionKey) String() string { return k.ToolName + ":" + k.Args }

// NewDecisionKey builds the memo key for a call. Arguments are decoded and
// re-encoded so object key order does not matter; encoding/json sorts map
// keys. Arguments that are not valid JSON are used verbatim.
func NewDecisionKey(toolName string, args json.RawMessage) DecisionKey {
	return DecisionKey{ToolName: toolName, Args: CanonicalJSON(args)}
}

// CanonicalJSON returns a key-order independent encoding of raw.
func CanonicalJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(trimmed)
	}
	return string(out)
}

// DecisionStore remembers execution decisions.
// Implementations must be safe for concurrent use.
type DecisionStore interface {
	// Lookup returns the stored decision for key, if any.
	Lookup(ctx context.Context, key DecisionKey) (Decision, bool, error)

	// Remember stores d under key, replacing any previous decision.
	Remember(ctx context.Context, key DecisionKey, d Decision) error
}

// MemoryDecisions is an in-process DecisionStore. It backs the ask-once
// memo and is cleared only when the process restarts or Forget is called.
type MemoryDecisions struct {
	mu        sync.RWMutex
	decisions map[DecisionKey]Decision
}

// NewMemoryDecisions creates an empty in-memory store.
func NewMemoryDecisions() *MemoryDecisions {
	return &MemoryDecisions{decisions: make(map[DecisionKey]Decision)}
}

// Lookup implements DecisionStore.
func (m *MemoryDecisions) Lookup(_ context.Context, key DecisionKey) (Decision, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[key]
	return d, ok, nil
}

// Remember implements DecisionStore.
func (m *MemoryDecisions) Remember(_ context.Context, key DecisionKey, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[key] = d
	return nil
}

// Len returns the number of remembered decisions.
func (m *MemoryDecisions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.decisions)
}

// Forget drops every remembered decision.
func (m *MemoryDecisions) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.decisions)
}

var _ DecisionStore = (*MemoryDecisions)(nil)
