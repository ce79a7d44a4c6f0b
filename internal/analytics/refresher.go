package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/dukerupert/gemloyalty/internal/model"
)

const refreshTimeout = 30 * time.Second

// Refresher recomputes the snapshot on a schedule and keeps the latest one
// for the dashboard.
type Refresher struct {
	agg       *Aggregator
	interval  time.Duration
	scheduler *gocron.Scheduler
	logger    *slog.Logger

	mu     sync.RWMutex
	latest *model.Snapshot
}

func NewRefresher(agg *Aggregator, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		agg:       agg,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}
}

// Start schedules the refresh job. The first run happens immediately.
func (r *Refresher) Start() error {
	_, err := r.scheduler.Every(r.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Error("analytics refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule analytics refresh: %w", err)
	}
	r.scheduler.StartAsync()
	r.logger.Info("analytics refresher started", "interval", r.interval)
	return nil
}

func (r *Refresher) Stop() {
	r.scheduler.Stop()
}

// Refresh computes a new snapshot and stores it as the latest.
func (r *Refresher) Refresh(ctx context.Context) (*model.Snapshot, error) {
	snap, err := r.agg.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()

	r.logger.Debug("analytics refreshed",
		"users_enrolled", snap.UsersEnrolled,
		"total_redemptions", snap.TotalRedemptions,
	)
	return snap, nil
}

// Latest returns the most recent snapshot, or nil before the first refresh.
func (r *Refresher) Latest() *model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}
