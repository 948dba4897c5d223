/*
streak.go - Streak derivation and the calculator that persists it

PURPOSE:
  A streak is derived, never edited. DeriveStreak is a pure function of the
  completion dates, "today" and the previous high-water mark. The
  StreakCalculator loads the dates, derives and saves the result.

ALGORITHM:
  1. No completions: current = 0, last = nil, longest unchanged.
  2. Sort dates descending (unique per habit, so no ties).
  3. Anchor: the walk starts only if the most recent date is today or
     yesterday (UTC). Older history gives current = 0.
  4. Walk from the most recent date; each date equal to the expected day
     adds one and moves expected back a day. The first gap ends the walk,
     even if an older run is itself consecutive.
  5. last = most recent date, whether or not the streak is alive.
  6. longest = max(longest, current).

  Completion value and notes never matter, only the presence of a date.

EXAMPLE (today = Mar 10):
  dates: Mar 10, Mar 9, Mar 8          -> current 3, longest 3
  delete Mar 9, dates: Mar 10, Mar 8   -> current 1, longest 3
  dates: Mar 6                         -> current 0, last Mar 6

LAZY INITIALIZATION:
  GetOrCompute returns the stored streak or, if the habit has none yet,
  runs Recompute (which creates the row). Concurrent first reads of the same
  habit share one computation.

SEE ALSO:
  - ledger.go: Calls recomputeIn after every mutation
  - refresher.go: Recomputes streaks that a day rollover made stale
*/
package habit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// DERIVATION
// =============================================================================

// DeriveStreak computes the streak for the given completion dates.
// prior carries the identity and high-water mark of the stored streak.
// dates may be in any order.
func DeriveStreak(prior Streak, dates []Date, today Date) Streak {
	next := prior
	if next.LongestStreak < 0 {
		next.LongestStreak = 0
	}

	if len(dates) == 0 {
		next.CurrentStreak = 0
		next.LastCompletion = nil
		return next
	}

	sorted := make([]Date, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	mostRecent := sorted[0]
	current := 0
	if mostRecent.Equal(today) || mostRecent.Equal(today.AddDays(-1)) {
		expected := mostRecent
		for _, d := range sorted {
			if !d.Equal(expected) {
				break
			}
			current++
			expected = expected.AddDays(-1)
		}
	}

	last := mostRecent
	next.CurrentStreak = current
	next.LastCompletion = &last
	if current > next.LongestStreak {
		next.LongestStreak = current
	}
	return next
}

// =============================================================================
// STREAK CALCULATOR
// =============================================================================

// StreakCalculator derives and persists streaks. It also owns the per-habit
// locks that serialize every writer of a habit's completions and streak.
type StreakCalculator struct {
	store TxStore
	clock Clock
	locks *keyedMutex
	group singleflight.Group
}

// NewStreakCalculator creates a calculator. A nil clock means the system clock.
func NewStreakCalculator(store TxStore, clock Clock) *StreakCalculator {
	if clock == nil {
		clock = SystemClock
	}
	return &StreakCalculator{
		store: store,
		clock: clock,
		locks: newKeyedMutex(),
	}
}

// Today is the calculator's notion of the current UTC date.
func (c *StreakCalculator) Today() Date { return c.clock.Today() }

// Recompute derives the streak of a habit from its completions and persists it.
// Returns ErrHabitNotFound if the habit does not exist for the owner.
func (c *StreakCalculator) Recompute(ctx context.Context, owner OwnerID, habitID HabitID) (Streak, error) {
	return c.recompute(ctx, owner, habitID, triggerManual)
}

func (c *StreakCalculator) recompute(ctx context.Context, owner OwnerID, habitID HabitID, trigger string) (Streak, error) {
	unlock := c.locks.Lock(int64(habitID))
	defer unlock()

	var out Streak
	err := c.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHabit(ctx, owner, habitID)
		if err != nil {
			return fmt.Errorf("get habit: %w", err)
		}
		if h == nil {
			return ErrHabitNotFound
		}
		out, err = c.recomputeIn(ctx, s, habitID, trigger)
		return err
	})
	if err != nil {
		return Streak{}, err
	}
	return out, nil
}

// recomputeIn runs the derivation against s, which is usually bound to the
// caller's transaction. The caller holds the habit's lock.
func (c *StreakCalculator) recomputeIn(ctx context.Context, s Store, habitID HabitID, trigger string) (Streak, error) {
	start := time.Now()
	streak, err := c.deriveAndSave(ctx, s, habitID)
	observeRecompute(trigger, start, err)
	return streak, err
}

func (c *StreakCalculator) deriveAndSave(ctx context.Context, s Store, habitID HabitID) (Streak, error) {
	prior, err := s.GetStreak(ctx, habitID)
	if err != nil {
		return Streak{}, fmt.Errorf("load streak: %w", err)
	}
	if prior == nil {
		prior = &Streak{HabitID: habitID}
	}

	dates, err := s.CompletionDates(ctx, habitID)
	if err != nil {
		return Streak{}, fmt.Errorf("load completion dates: %w", err)
	}

	next := DeriveStreak(*prior, dates, c.clock.Today())
	next.HabitID = habitID
	next.UpdatedAt = c.clock().UTC()

	saved, err := s.SaveStreak(ctx, next)
	if err != nil {
		return Streak{}, fmt.Errorf("save streak: %w", err)
	}
	return saved, nil
}

// GetOrCompute returns the stored streak of a habit, computing it on first read.
func (c *StreakCalculator) GetOrCompute(ctx context.Context, owner OwnerID, habitID HabitID) (Streak, error) {
	h, err := c.store.GetHabit(ctx, owner, habitID)
	if err != nil {
		return Streak{}, fmt.Errorf("get habit: %w", err)
	}
	if h == nil {
		return Streak{}, ErrHabitNotFound
	}

	existing, err := c.store.GetStreak(ctx, habitID)
	if err != nil {
		return Streak{}, fmt.Errorf("get streak: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	key := strconv.FormatInt(int64(owner), 10) + "/" + strconv.FormatInt(int64(habitID), 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.recompute(ctx, owner, habitID, triggerLazy)
	})
	if err != nil {
		return Streak{}, err
	}
	return v.(Streak), nil
}
