// Package cron runs toolgate's periodic maintenance: pruning the result
// cache and rescanning the script tool directory.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. It must be unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression or a descriptor like "@hourly".
	Schedule() string

	// Run executes one tick. It should return promptly once ctx ends.
	Run(ctx context.Context) error
}
