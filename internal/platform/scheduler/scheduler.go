// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "scheduler")}
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Add registers job under a standard five-field cron spec or a descriptor
// such as "@every 1h".
func (s *Scheduler) Add(spec string, name string, job func(ctx context.Context) error) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return errors.New("schedule is required")
	}
	if job == nil {
		return errors.New("job is required")
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(context.Background()); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Info("scheduled job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is cancelled and running
// jobs have finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// DeadLetterPurger is satisfied by the queue store.
type DeadLetterPurger interface {
	PurgeDeadLetters(ctx context.Context, olderThan time.Time) (int64, error)
}

// PurgeDeadLetters returns a job deleting dead letters older than retention.
func PurgeDeadLetters(logger *slog.Logger, purger DeadLetterPurger, retention time.Duration, now func() time.Time) func(ctx context.Context) error {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention).UTC()
		n, err := purger.PurgeDeadLetters(ctx, cutoff)
		if err != nil {
			return err
		}
		if logger != nil && n > 0 {
			logger.Info("dead letters purged", "count", n, "cutoff", cutoff)
		}
		return nil
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
