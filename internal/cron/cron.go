// Package cron runs the periodic maintenance jobs: session settling, the
// replenishment sweep, and drill cache cleanup.
package cron

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/drillcore/internal/logger"
)

// Settler settles idle sessions.
type Settler interface {
	SettleInactive(ctx context.Context) (int, error)
}

// Sweeper tops up under-stocked inventories.
type Sweeper interface {
	SweepActiveUsers(ctx context.Context) (int, error)
}

// CacheCleaner removes stale durable cache entries.
type CacheCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Scheduler owns the gocron instance.
type Scheduler struct {
	scheduler *gocron.Scheduler
	settler   Settler
	sweeper   Sweeper
	cleaner   CacheCleaner
	log       *logger.Logger
}

// New creates a Scheduler.
func New(settler Settler, sweeper Sweeper, cleaner CacheCleaner, log *logger.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		settler:   settler,
		sweeper:   sweeper,
		cleaner:   cleaner,
		log:       log.With("component", "cron"),
	}
}

// Start registers the jobs and runs them asynchronously.
func (s *Scheduler) Start() {
	s.scheduler.Every(1).Minute().Do(s.settleSessions)
	s.scheduler.Every(15).Minutes().Do(s.sweepInventory)
	s.scheduler.Every(1).Hour().Do(s.cleanDrillCache)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) settleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.settler.SettleInactive(ctx); err != nil {
		s.log.Error("session settling failed", "error", err)
	}
}

func (s *Scheduler) sweepInventory() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.sweeper.SweepActiveUsers(ctx); err != nil {
		s.log.Error("replenishment sweep failed", "error", err)
	}
}

func (s *Scheduler) cleanDrillCache() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.cleaner.DeleteExpired(ctx)
	if err != nil {
		s.log.Error("drill cache cleanup failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("drill cache cleaned", "removed", n)
	}
}
