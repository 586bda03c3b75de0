// Package scheduler turns watch configurations into due watch_run jobs.
// It never executes runs itself; the job ledger's dedupe key makes
// overlapping ticks and restarts harmless.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	ListActiveWatches(ctx context.Context) ([]models.ScoutWatch, error)
	EnqueueJob(ctx context.Context, queue, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*models.Job, bool, error)
}

// Scheduler periodically checks active watches and enqueues a run job for
// each due one.
type Scheduler struct {
	store       Store
	queue       string
	tick        time.Duration
	maxAttempts int
	now         func() time.Time
}

// New creates a scheduler polling on the given tick.
func New(store Store, queue string, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		store:       store,
		queue:       queue,
		tick:        tick,
		maxAttempts: 3,
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled, enqueueing due watch runs on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			slog.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick enqueues a run job for every due active watch.
func (s *Scheduler) Tick(ctx context.Context) error {
	watches, err := s.store.ListActiveWatches(ctx)
	if err != nil {
		return fmt.Errorf("list active watches: %w", err)
	}

	now := s.now()
	for _, watch := range watches {
		if !due(&watch, now) {
			continue
		}
		watchID, err := models.RecordIDString(watch.ID)
		if err != nil {
			slog.Error("watch has malformed id", "error", err)
			continue
		}

		_, created, err := s.store.EnqueueJob(ctx, s.queue, models.JobTypeWatchRun,
			map[string]any{"watch_id": watchID},
			runDedupeKey(watchID, watch.ScanEvery, now),
			s.maxAttempts)
		if err != nil {
			slog.Error("failed to enqueue watch run", "watch", watchID, "error", err)
			continue
		}
		if created {
			slog.Info("watch run enqueued", "watch", watchID, "location", watch.SourceLocation)
		}
	}
	return nil
}

// due reports whether the watch's scan interval has elapsed. A watch that
// never ran is immediately due.
func due(watch *models.ScoutWatch, now time.Time) bool {
	if watch.ScanEvery <= 0 {
		return false
	}
	if watch.LastRunAt == nil {
		return true
	}
	return !now.Before(watch.LastRunAt.Add(watch.ScanEvery))
}

// runDedupeKey buckets time by the watch's scan interval so every trigger
// within one interval collapses onto the same ledger row.
func runDedupeKey(watchID string, scanEvery time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(scanEvery.Seconds())
	return fmt.Sprintf("watch_run:%s:%d", watchID, bucket)
}
