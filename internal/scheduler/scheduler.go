// Package scheduler runs the periodic card expiry sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultSweepTimeout = time.Minute

// Sweeper expires every card whose expiry has passed.
type Sweeper interface {
	ExpireDueCards(ctx context.Context) (int, error)
}

// Scheduler triggers the expiry sweep on a cron schedule. Overlapping runs
// are skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  *logrus.Logger
}

// New parses schedule (standard five-field cron or a descriptor such as
// "@hourly") and registers the sweep.
func New(sweeper Sweeper, schedule string, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{
		sweeper: sweeper,
		timeout: defaultSweepTimeout,
		logger:  logger,
	}
	cronLogger := cron.PrintfLogger(logger)
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("parse expiry sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sweeper.ExpireDueCards(ctx)
}

func (s *Scheduler) run() {
	started := time.Now()
	expired, err := s.RunOnce(context.Background())
	entry := s.logger.WithFields(logrus.Fields{
		"expired":     expired,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("expiry sweep failed")
		return
	}
	entry.Debug("expiry sweep finished")
}
