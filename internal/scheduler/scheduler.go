package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled activation.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Spec       string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler drives cron-scheduled execution of batch runs. An activation that
// arrives while the previous one is still running is skipped.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New validates the cron expression and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", opts.Spec, err)
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Run blocks, invoking tick on schedule until ctx is cancelled. In-flight ticks
// are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	job := cron.FuncJob(func() {
		at := time.Now().In(s.opts.Location)
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	})
	wrapped := c.Schedule(s.schedule, job)
	s.logger.Debug().Int("entry", int(wrapped)).Time("next", s.Next(time.Now())).Msg("schedule registered")

	if s.opts.RunOnStart {
		// Run through the chain so a slow first run still blocks overlapping activations.
		go c.Entry(wrapped).WrappedJob.Run()
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return ctx.Err()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
