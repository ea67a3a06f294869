// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultStaleSchedule runs the reaper every 15 minutes.
const DefaultStaleSchedule = "*/15 * * * *"

// StaleJobReaper errors jobs stuck in processing.
type StaleJobReaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	reaper    StaleJobReaper
	schedule  string
	olderThan time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(reaper StaleJobReaper, schedule string, olderThan time.Duration, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultStaleSchedule
	}
	if olderThan <= 0 {
		olderThan = 2 * time.Hour
	}
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		reaper:    reaper,
		schedule:  schedule,
		olderThan: olderThan,
		logger:    logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.reapStaleJobs); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("stale_job_schedule", s.schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the reaper synchronously.
func (s *Scheduler) RunNow() {
	s.reapStaleJobs()
}

func (s *Scheduler) reapStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.reaper.ReapStale(ctx, s.olderThan)
	if err != nil {
		s.logger.Error("failed to reap stale jobs", slog.Any("error", err))
		return
	}
	s.logger.Debug("stale job sweep completed", slog.Int64("reaped", n))
}
