// Package scheduler runs the periodic housekeeping of the RxWriter service:
// expiring idle sessions and pruning idle rate-limiter buckets.
package scheduler

import (
	"fmt"
	"time"

	"github.com/giygas/rxwriter/interfaces"
	"github.com/giygas/rxwriter/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	DefaultSweepInterval = 5 * time.Minute
	PruneInterval        = 30 * time.Minute
)

// Scheduler handles background jobs using dependency injection
type Scheduler struct {
	sessions      interfaces.SessionSweeper
	limiter       interfaces.BucketPruner
	sweepInterval time.Duration
	scheduler     *gocron.Scheduler
	now           func() time.Time
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// limiter may be nil when rate limiting is disabled.
func NewScheduler(sessions interfaces.SessionSweeper, limiter interfaces.BucketPruner, sweepInterval time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := gocron.NewScheduler(time.Local)
	// A slow run is never overlapped by the next tick
	s.SingletonModeAll()

	return &Scheduler{
		sessions:      sessions,
		limiter:       limiter,
		sweepInterval: sweepInterval,
		scheduler:     s,
		now:           time.Now,
	}
}

// Start registers the jobs and starts the scheduler in the background
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.sweepInterval).WaitForSchedule().Do(s.sweepSessions); err != nil {
		logging.Error("Failed to schedule session sweep", "error", err)
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	if s.limiter != nil {
		if _, err := s.scheduler.Every(PruneInterval).WaitForSchedule().Do(s.pruneBuckets); err != nil {
			logging.Error("Failed to schedule rate limiter pruning", "error", err)
			return fmt.Errorf("failed to schedule rate limiter pruning: %w", err)
		}
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started", "session_sweep_interval", s.sweepInterval.String(), "jobs", s.scheduler.Len())

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) sweepSessions() {
	start := time.Now()
	removed := s.sessions.Sweep(s.now())
	logging.Debug("Session sweep completed",
		"removed", removed,
		"remaining", s.sessions.Len(),
		"duration", time.Since(start).String(),
	)
}

func (s *Scheduler) pruneBuckets() {
	removed := s.limiter.Prune()
	logging.Debug("Rate limiter buckets pruned", "removed", removed)
}
