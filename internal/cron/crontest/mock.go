// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/toolgate/internal/cron"
)

// MockJob is a configurable cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and counts calls.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns how many times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a cron.Pruner.
type MockPruner struct {
	PruneFunc  func() (int, error)
	PruneCalls atomic.Int32
}

// Prune implements cron.Pruner.
func (m *MockPruner) Prune() (int, error) {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc()
	}
	return 0, nil
}
