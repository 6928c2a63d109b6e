package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("cron: unknown job")

// parser accepts the standard 5-field syntax plus descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is accepted by the scheduler.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Scheduler runs jobs on their schedules. A job never overlaps itself: a
// tick that fires while the previous one is still running is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]Job
	order  []string
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds a job. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.jobs[name] = j
	s.order = append(s.order, name)
	s.locks[name] = &sync.Mutex{}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start schedules every registered job. It fails on the first invalid
// schedule and schedules nothing in that case.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		job := s.jobs[name]
		if _, err := c.AddFunc(job.Schedule(), func() { s.tick(job, true) }); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}
	s.cron = c
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// RunNow runs the named job once, synchronously, unless it is already
// running. It reports whether the job ran.
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.tick(job, false), nil
}

// tick runs job unless a previous tick still holds its lock.
func (s *Scheduler) tick(job Job, scheduled bool) bool {
	s.mu.Lock()
	lock := s.locks[job.Name()]
	s.mu.Unlock()

	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name(), "scheduled", scheduled)
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", job.Name())
	}
	return true
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()

	s.cancel()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
