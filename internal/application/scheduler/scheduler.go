// Package scheduler triggers repricing and snapshots from outside the
// ledger. The core runs no loop of its own: each job is a synchronous call.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyledger/internal/metrics"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps robfig/cron. With a Locker configured only one
// instance runs each trigger; the others skip it.
type Scheduler struct {
	cron    *cron.Cron
	locker  ports.Locker
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. locker may be nil (single instance).
// timeout bounds each run; 0 means no limit.
func New(locker ports.Locker, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		locker:  locker,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers job with a standard 5-field cron expression or a
// descriptor such as "@every 5m" or "@daily".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(s.ctx, job); err != nil {
			slog.Error("job failed", "job", job.Name(), "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler.AddJob %s %q: %w", job.Name(), schedule, err)
	}
	slog.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// Start runs the cron in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops triggering jobs, cancels running ones and waits until they
// return or ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out")
	}
	slog.Info("scheduler stopped")
}

// RunNow runs job immediately, honouring the distributed lock.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, job.Name())
		if err != nil {
			metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
			return fmt.Errorf("scheduler.RunNow %s: %w", job.Name(), err)
		}
		if !ok {
			metrics.JobRuns.WithLabelValues(job.Name(), "skipped").Inc()
			slog.Debug("job held by another instance", "job", job.Name())
			return nil
		}
		defer func() {
			// the job ctx may already be cancelled
			if err := unlock(context.Background()); err != nil {
				slog.Warn("job unlock failed", "job", job.Name(), "err", err)
			}
		}()
	}

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
		return fmt.Errorf("scheduler.RunNow %s: %w", job.Name(), err)
	}
	metrics.JobRuns.WithLabelValues(job.Name(), "ok").Inc()
	slog.Debug("job completed", "job", job.Name(), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
