package cron_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/toolgate/internal/cron"
	"github.com/flemzord/toolgate/internal/cron/crontest"
)

func TestCachePruneJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		prune     func() (int, error)
		wantErr   bool
		wantCount int
	}{
		{name: "removed", prune: func() (int, error) { return 3, nil }, wantCount: 3},
		{name: "nothing", prune: func() (int, error) { return 0, nil }},
		{name: "error", prune: func() (int, error) { return 1, errors.New("permission denied") }, wantErr: true, wantCount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &crontest.MockPruner{PruneFunc: tt.prune}
			var got int
			job := &cron.CachePruneJob{Cache: p, OnPruned: func(n int) { got += n }}
			err := job.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantCount {
				t.Errorf("OnPruned total = %d, want %d", got, tt.wantCount)
			}
			if p.PruneCalls.Load() != 1 {
				t.Errorf("prune calls = %d", p.PruneCalls.Load())
			}
		})
	}
}

func TestCachePruneJob_CancelledContext(t *testing.T) {
	t.Parallel()

	p := &crontest.MockPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&cron.CachePruneJob{Cache: p}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if p.PruneCalls.Load() != 0 {
		t.Error("prune ran after cancellation")
	}
}

func TestJobSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job  cron.Job
		want string
	}{
		{&cron.CachePruneJob{}, "@hourly"},
		{&cron.CachePruneJob{ScheduleExpr: "*/10 * * * *"}, "*/10 * * * *"},
		{&cron.ScriptRescanJob{}, "*/5 * * * *"},
		{&cron.ScriptRescanJob{ScheduleExpr: "@daily"}, "@daily"},
	}
	for _, tt := range tests {
		if got := tt.job.Schedule(); got != tt.want {
			t.Errorf("%s.Schedule() = %q, want %q", tt.job.Name(), got, tt.want)
		}
		if err := cron.ValidateSchedule(tt.job.Schedule()); err != nil {
			t.Errorf("%s: %v", tt.job.Name(), err)
		}
	}
}

func TestScriptRescanJob(t *testing.T) {
	t.Parallel()

	var calls int
	job := &cron.ScriptRescanJob{Scripts: cron.ReloadFunc(func(context.Context) error {
		calls++
		return nil
	})}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestScheduler_RunsMockJob(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	job := &crontest.MockJob{NameVal: "mock", ScheduleVal: "@daily"}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	if ran, err := s.RunNow("mock"); !ran || err != nil {
		t.Fatalf("RunNow = %v, %v", ran, err)
	}
	if job.CallCount() != 1 {
		t.Errorf("calls = %d", job.CallCount())
	}
}
