// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. Run reports how many records it touched.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Scheduler wraps cron with panic recovery and no overlapping runs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job. Schedules use the standard five-field syntax or
// descriptors such as "@every 1h".
func (s *Scheduler) Add(job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(job.Schedule, func() { s.execute(job) })
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return id, nil
}

func (s *Scheduler) execute(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job finished", "job", job.Name, "affected", n, "duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's logr-style logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
