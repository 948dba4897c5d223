/*
scheduler.go - Background streak refresher

PURPOSE:
  A stored streak depends on "today". After midnight UTC a habit with no new
  completion may have lost its streak without any ledger mutation having
  happened. The refresher periodically recomputes every streak last written
  before today, so stored streaks match what a recompute would return.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on Start
  - Uses StreakCalculator.RecomputeStale, which takes the same per-habit
    locks as the ledger, so it never races a request
  - Habits deleted mid-run are counted and skipped

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Workers:  Habits recomputed in parallel (default: 4)

USAGE:
  refresher := NewStreakRefresher(handler.Streaks, logger)
  refresher.Start()
  // ... later
  refresher.Stop()

SEE ALSO:
  - habit/refresher.go: RecomputeStale
  - handlers.go: RecalculateStreak endpoint (manual recompute)
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/streak-engine/habit"
)

// StreakRefresher recomputes stale streaks on an interval.
type StreakRefresher struct {
	Streaks  *habit.StreakCalculator
	Logger   *zap.Logger
	Interval time.Duration
	Workers  int

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStreakRefresher creates a refresher with default settings.
func NewStreakRefresher(streaks *habit.StreakCalculator, logger *zap.Logger) *StreakRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreakRefresher{
		Streaks:  streaks,
		Logger:   logger,
		Interval: time.Hour,
		Workers:  4,
	}
}

// Start begins the refresher. Calling Start twice is a no-op.
func (sr *StreakRefresher) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sr.cancel = cancel
	sr.ticker = time.NewTicker(sr.Interval)
	sr.wg.Add(1)

	go sr.run(ctx, sr.ticker.C)

	sr.Logger.Info("streak refresher started",
		zap.Duration("interval", sr.Interval),
		zap.Int("workers", sr.Workers),
	)
}

// Stop stops the refresher and waits for a running pass to finish.
func (sr *StreakRefresher) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.ticker == nil {
		return
	}
	sr.ticker.Stop()
	sr.cancel()
	sr.wg.Wait()
	sr.ticker = nil
	sr.Logger.Info("streak refresher stopped")
}

func (sr *StreakRefresher) run(ctx context.Context, tick <-chan time.Time) {
	defer sr.wg.Done()

	// Run immediately on start
	sr.RunOnce(ctx)

	for {
		select {
		case <-tick:
			sr.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce recomputes every stale streak once.
func (sr *StreakRefresher) RunOnce(ctx context.Context) habit.BatchResult {
	start := time.Now()
	res, err := sr.Streaks.RecomputeStale(ctx, sr.Workers)
	if err != nil {
		if ctx.Err() == nil {
			sr.Logger.Error("streak refresh failed", zap.Error(err))
		}
		return res
	}

	if res.Recomputed > 0 || res.Vanished > 0 {
		sr.Logger.Info("streaks refreshed",
			zap.Int("recomputed", res.Recomputed),
			zap.Int("vanished", res.Vanished),
			zap.Duration("took", time.Since(start)),
		)
	} else {
		sr.Logger.Debug("no stale streaks")
	}
	return res
}
