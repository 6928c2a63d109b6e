package tool

import (
	"sync"
	"time"
)

// ElevatedState tracks whether the registry is in elevated mode.
// While active, ask-once and ask-always execution policies behave as auto.
// Result policies are never changed.
type ElevatedState struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time // injectable for testing
}

// NewElevatedState creates a new ElevatedState with real time.
func NewElevatedState() *ElevatedState {
	return &ElevatedState{
		now: time.Now,
	}
}

// Elevate activates elevated mode for the given duration.
func (e *ElevatedState) Elevate(duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.until = e.now().Add(duration)
}

// Revoke immediately deactivates elevated mode.
func (e *ElevatedState) Revoke() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.until = time.Time{}
}

// IsActive reports whether elevated mode is currently active.
func (e *ElevatedState) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.until.IsZero() && e.now().Before(e.until)
}

// Apply adjusts a permission based on elevated state. A nil state is inactive.
func (e *ElevatedState) Apply(p Permission) Permission {
	if e == nil || p.Execution == ExecAuto {
		return p
	}
	if e.IsActive() {
		p.Execution = ExecAuto
	}
	return p
}

// Remaining returns how long elevated mode stays active, or zero.
func (e *ElevatedState) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.until.IsZero() {
		return 0
	}
	if d := e.until.Sub(e.now()); d > 0 {
		return d
	}
	return 0
}
