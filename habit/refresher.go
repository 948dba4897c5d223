package habit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchResult reports a bulk recompute.
type BatchResult struct {
	Recomputed int
	// Vanished counts habits deleted between listing and recomputing.
	Vanished int
}

// RecomputeStale recomputes every streak that was last written before today.
// A stored streak only depends on the ledger and the date, so after a day
// rollover a streak with no new completion may be broken without any ledger
// mutation having happened.
func (c *StreakCalculator) RecomputeStale(ctx context.Context, workers int) (BatchResult, error) {
	habits, err := c.store.ListStaleHabits(ctx, c.Today())
	if err != nil {
		return BatchResult{}, fmt.Errorf("list stale habits: %w", err)
	}
	return c.recomputeBatch(ctx, habits, workers, triggerRefresh)
}

// RecomputeAll recomputes the streak of every habit of every owner.
func (c *StreakCalculator) RecomputeAll(ctx context.Context, workers int) (BatchResult, error) {
	habits, err := c.store.ListAllHabits(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list habits: %w", err)
	}
	return c.recomputeBatch(ctx, habits, workers, triggerManual)
}

func (c *StreakCalculator) recomputeBatch(ctx context.Context, habits []Habit, workers int, trigger string) (BatchResult, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]error, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, h := range habits {
		g.Go(func() error {
			_, err := c.recompute(gctx, h.OwnerID, h.ID, trigger)
			if errors.Is(err, ErrHabitNotFound) {
				results[i] = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("habit %d: %w", h.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for _, err := range results {
		if err != nil {
			res.Vanished++
			continue
		}
		res.Recomputed++
	}
	return res, nil
}
