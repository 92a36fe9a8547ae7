package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every cron activation.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a standard five-field cron expression or descriptor such as "@daily".
	Spec       string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler drives cron-based execution of forecast jobs.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New parses the cron expression and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Spec == "" {
		return nil, fmt.Errorf("scheduler cron expression is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", opts.Spec, err)
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next reports the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Run blocks, invoking tick on every activation until ctx is cancelled.
// Ticks never overlap; an activation that fires while a tick is running is skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	exec := func(at time.Time) {
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	}

	if s.opts.RunOnStart {
		exec(time.Now().In(s.opts.Location))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		exec(time.Now().In(s.opts.Location))
	}))

	c.Start()
	s.logger.Debug().Time("next", s.Next(time.Now())).Str("spec", s.opts.Spec).Msg("scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}
