// Package scheduler triggers review passes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"content_review/internal/runner"
)

// Passer runs one review pass.
type Passer interface {
	RunPass(ctx context.Context, now time.Time) (runner.Report, error)
}

// Reporter receives the outcome of each scheduled pass.
type Reporter interface {
	Send(ctx context.Context, rep runner.Report) error
	SendError(ctx context.Context, err error) error
}

// Scheduler runs review passes on a cron schedule. Passes never overlap: a
// tick that arrives while a pass is still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	passer   Passer
	reporter Reporter
	log      zerolog.Logger
	now      func() time.Time
	ctx      context.Context
}

// New creates a Scheduler that runs passer on schedule, a standard
// five-field cron expression or descriptor such as "@daily", evaluated in
// UTC. reporter may be nil.
func New(schedule string, passer Passer, reporter Reporter, log zerolog.Logger) (*Scheduler, error) {
	log = log.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		passer:   passer,
		reporter: reporter,
		log:      log,
		now:      time.Now,
		ctx:      context.Background(),
	}

	clog := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := s.cron.AddFunc(schedule, func() { s.runOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a pass in progress to finish. With runNow set, a pass also runs at start.
func (s *Scheduler) Run(ctx context.Context, runNow bool) {
	s.ctx = ctx
	if runNow {
		s.runOnce(ctx)
	}

	s.cron.Start()
	if entries := s.cron.Entries(); len(entries) > 0 {
		s.log.Info().Time("next", entries[0].Next).Msg("scheduler started")
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := s.now()
	rep, err := s.passer.RunPass(ctx, start)
	if err != nil {
		s.log.Error().Err(err).Msg("review pass failed")
		if s.reporter != nil {
			if rerr := s.reporter.SendError(ctx, err); rerr != nil {
				s.log.Error().Err(rerr).Msg("send error report")
			}
		}
		return
	}

	s.log.Info().Dur("took", time.Since(start)).Msg("review pass completed")
	if s.reporter != nil {
		if err := s.reporter.Send(ctx, rep); err != nil {
			s.log.Error().Err(err).Msg("send report")
		}
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
