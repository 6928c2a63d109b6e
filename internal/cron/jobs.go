package cron

import (
	"context"
	"log/slog"
)

// Pruner removes old result cache files. *pipeline.Cache implements it.
type Pruner interface {
	Prune() (int, error)
}

// CachePruneJob prunes the result cache on a schedule, on top of the
// prune that follows every cache write.
type CachePruneJob struct {
	Cache        Pruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@hourly"

	// OnPruned, if set, receives the number of files removed.
	OnPruned func(n int)
}

var _ Job = (*CachePruneJob)(nil)

// Name implements Job.
func (j *CachePruneJob) Name() string { return "cache_prune" }

// Schedule implements Job.
func (j *CachePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@hourly"
}

// Run implements Job.
func (j *CachePruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := j.Cache.Prune()
	if j.OnPruned != nil {
		j.OnPruned(n)
	}
	if err != nil {
		return err
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned result cache", "removed", n)
	}
	return nil
}

// Reloader rescans script tools. *scripttool.Watcher satisfies it through
// ReloadFunc.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloadFunc adapts a function to Reloader.
type ReloadFunc func(ctx context.Context) error

// Reload implements Reloader.
func (f ReloadFunc) Reload(ctx context.Context) error { return f(ctx) }

// ScriptRescanJob reloads the script tool directory on a schedule, for
// setups where filesystem events are unavailable.
type ScriptRescanJob struct {
	Scripts      Reloader
	ScheduleExpr string // empty = "*/5 * * * *"
}

var _ Job = (*ScriptRescanJob)(nil)

// Name implements Job.
func (j *ScriptRescanJob) Name() string { return "script_rescan" }

// Schedule implements Job.
func (j *ScriptRescanJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *ScriptRescanJob) Run(ctx context.Context) error {
	return j.Scripts.Reload(ctx)
}
