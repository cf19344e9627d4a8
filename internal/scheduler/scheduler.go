// Package scheduler runs a job on a cron schedule, one run at a time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

// Job is one scheduled run. Its error is logged and does not stop the
// scheduler.
type Job func(ctx context.Context) error

// Runner fires a Job at every activation of a cron schedule. A run that
// overlaps the next activation delays it; activations are never queued.
type Runner struct {
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock and the timer used between runs.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
		if after != nil {
			r.after = after
		}
	}
}

// Parse parses a five-field cron expression.
func Parse(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// New creates a Runner for expr.
func New(expr string, job Job, opts ...Option) (*Runner, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		schedule: schedule,
		job:      job,
		logger:   logger.NewNope(),
		now:      time.Now,
		after:    time.After,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Next returns the next activation after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Run blocks until ctx is cancelled, running the job at every activation.
func (r *Runner) Run(ctx context.Context) error {
	for {
		next := r.schedule.Next(r.now())
		r.logger.InfoContext(ctx, "next scheduled run", slog.Time("at", next))

		select {
		case <-ctx.Done():
			return nil
		case <-r.after(next.Sub(r.now())):
		}
		if ctx.Err() != nil {
			return nil
		}

		started := r.now()
		if err := r.job(ctx); err != nil {
			r.logger.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
		} else {
			r.logger.InfoContext(ctx, "scheduled run completed", slog.Duration("took", r.now().Sub(started)))
		}
	}
}
