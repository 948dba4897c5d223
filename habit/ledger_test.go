package habit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/streak-engine/habit"
)

// =============================================================================
// STREAK PROPERTIES
// =============================================================================

func TestLedger_NoCompletions_ZeroStreak(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		h := e.mustHabit(t, "Meditate")

		s := e.streak(t, h.ID)
		assert.Equal(t, 0, s.CurrentStreak)
		assert.Equal(t, 0, s.LongestStreak)
		assert.Nil(t, s.LastCompletion)
	})
}

func TestLedger_ConsecutiveDaysEndingToday(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		h := e.mustHabit(t, "Run")

		for i := 4; i >= 0; i-- {
			e.complete(t, h.ID, day(-i))
		}

		s := e.streak(t, h.ID)
		assert.Equal(t, 5, s.CurrentStreak)
		assert.Equal(t, 5, s.LongestStreak)
		require.NotNil(t, s.LastCompletion)
		assert.True(t, s.LastCompletion.Equal(day(0)))
	})
}

func TestLedger_OldConsecutiveRun_NoCurrentStreak(t *testing.T) {
	// GIVEN: Completions on today-5, today-4, today-3 (consecutive among themselves)
	// WHEN: Nothing was logged today or yesterday
	// THEN: current_streak is 0 and last_completion is today-3

	backends(t, func(t *testing.T, e *engine) {
		h := e.mustHabit(t, "Stretch")
		e.complete(t, h.ID, day(-5))
		e.complete(t, h.ID, day(-4))
		e.complete(t, h.ID, day(-3))

		s := e.streak(t, h.ID)
		assert.Equal(t, 0, s.CurrentStreak)
		require.NotNil(t, s.LastCompletion)
		assert.True(t, s.LastCompletion.Equal(day(-3)))
	})
}

func TestLedger_DeleteBreaksStreak_LongestKept(t *testing.T) {
	// GIVEN: Completions on today, today-1, today-2 (streak 3)
	// WHEN: The today-1 completion is deleted
	// THEN: current drops to 1 immediately, longest stays 3

	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Read")
		e.complete(t, h.ID, day(0))
		middle := e.complete(t, h.ID, day(-1))
		e.complete(t, h.ID, day(-2))

		s, err := e.calc.Recompute(ctx, habit.DefaultOwner, h.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, s.CurrentStreak)
		assert.Equal(t, 3, s.LongestStreak)
		require.NotNil(t, s.LastCompletion)
		assert.True(t, s.LastCompletion.Equal(day(0)))

		require.NoError(t, e.ledger.Delete(ctx, habit.DefaultOwner, middle.ID))

		// The stored streak is already fresh; no explicit recompute needed.
		stored, err := e.store.GetStreak(ctx, h.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, 1, stored.CurrentStreak)
		assert.Equal(t, 3, stored.LongestStreak)

		s, err = e.calc.Recompute(ctx, habit.DefaultOwner, h.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, s.CurrentStreak)
		assert.Equal(t, 3, s.LongestStreak)
	})
}

func TestLedger_OnlyOldCompletion_LongestUnchanged(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Journal")
		today := e.complete(t, h.ID, day(0))
		yesterday := e.complete(t, h.ID, day(-1))
		require.Equal(t, 2, e.streak(t, h.ID).LongestStreak)

		// Move everything out of the anchor window: only today-4 remains.
		require.NoError(t, e.ledger.Delete(ctx, habit.DefaultOwner, today.ID))
		_, err := e.ledger.Update(ctx, habit.DefaultOwner, yesterday.ID, habit.CompletionPatch{Date: ptr(day(-4))})
		require.NoError(t, err)

		s := e.streak(t, h.ID)
		assert.Equal(t, 0, s.CurrentStreak)
		assert.Equal(t, 2, s.LongestStreak)
		require.NotNil(t, s.LastCompletion)
		assert.True(t, s.LastCompletion.Equal(day(-4)))
	})
}

func TestLedger_LongestNeverDecreases(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Swim")

		var ids []habit.CompletionID
		for i := 0; i < 6; i++ {
			ids = append(ids, e.complete(t, h.ID, day(-i)).ID)
		}

		longest := e.streak(t, h.ID).LongestStreak
		require.Equal(t, 6, longest)

		mutations := []func() error{
			func() error { return e.ledger.Delete(ctx, habit.DefaultOwner, ids[1]) },
			func() error {
				_, err := e.ledger.Update(ctx, habit.DefaultOwner, ids[0], habit.CompletionPatch{Date: ptr(day(-10))})
				return err
			},
			func() error { return e.ledger.Delete(ctx, habit.DefaultOwner, ids[3]) },
			func() error {
				_, err := e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID, Date: day(0)})
				return err
			},
			func() error { return e.ledger.Delete(ctx, habit.DefaultOwner, ids[5]) },
		}
		for i, m := range mutations {
			require.NoError(t, m(), "mutation %d", i)
			s := e.streak(t, h.ID)
			assert.GreaterOrEqual(t, s.LongestStreak, longest, "after mutation %d", i)
			longest = s.LongestStreak
		}
	})
}

// =============================================================================
// ONE COMPLETION PER DAY
// =============================================================================

func TestLedger_DuplicateInsert_Rejected(t *testing.T) {
	// GIVEN: A completion for today with value 3 and a note
	// WHEN: Inserting another completion for today
	// THEN: DuplicateDateError naming the existing record; the original is unchanged

	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Pushups")

		original, err := e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{
			HabitID: h.ID, Date: day(0), Value: 3, Notes: "morning",
		})
		require.NoError(t, err)

		_, err = e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{
			HabitID: h.ID, Date: day(0), Value: 9, Notes: "evening",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, habit.ErrDuplicateDate)

		var dup *habit.DuplicateDateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, h.ID, dup.HabitID)
		assert.True(t, dup.Date.Equal(day(0)))
		assert.Equal(t, original.ID, dup.ExistingID)

		got, err := e.ledger.Get(ctx, habit.DefaultOwner, original.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Value)
		assert.Equal(t, "morning", got.Notes)

		list, err := e.ledger.ListByHabit(ctx, habit.DefaultOwner, h.ID, habit.Page{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, 1, e.streak(t, h.ID).CurrentStreak)
	})
}

func TestLedger_UpdateOntoTakenDate_Rejected(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Walk")
		e.complete(t, h.ID, day(0))
		other := e.complete(t, h.ID, day(-1))

		_, err := e.ledger.Update(ctx, habit.DefaultOwner, other.ID, habit.CompletionPatch{
			Date:  ptr(day(0)),
			Value: ptr(5),
		})
		assert.ErrorIs(t, err, habit.ErrDuplicateDate)

		got, err := e.ledger.Get(ctx, habit.DefaultOwner, other.ID)
		require.NoError(t, err)
		assert.True(t, got.Date.Equal(day(-1)))
		assert.Equal(t, 1, got.Value)
	})
}

func TestLedger_UpdateSameDate_Allowed(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Walk")
		c := e.complete(t, h.ID, day(0))

		got, err := e.ledger.Update(ctx, habit.DefaultOwner, c.ID, habit.CompletionPatch{
			Date:  ptr(day(0)),
			Notes: ptr("felt good"),
		})
		require.NoError(t, err)
		assert.Equal(t, "felt good", got.Notes)
		assert.Equal(t, 1, got.Value)
	})
}

func TestLedger_SameDateDifferentHabits_Allowed(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		a := e.mustHabit(t, "A")
		b := e.mustHabit(t, "B")
		e.complete(t, a.ID, day(0))
		e.complete(t, b.ID, day(0))
	})
}

func TestLedger_ConcurrentSameDate_OneWins(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Race")

		const writers = 8
		var (
			wg   sync.WaitGroup
			errs = make([]error, writers)
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID, Date: day(0)})
			}(i)
		}
		wg.Wait()

		var ok, dup int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, habit.ErrDuplicateDate):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, dup)
		assert.Equal(t, 1, e.streak(t, h.ID).CurrentStreak)
	})
}

// =============================================================================
// VALIDATION AND NOT FOUND
// =============================================================================

func TestLedger_Insert_Validation(t *testing.T) {
	e := newMemoryEngine(t)
	ctx := context.Background()
	h := e.mustHabit(t, "Water")

	_, err := e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID})
	assert.ErrorIs(t, err, habit.ErrValidation, "date is required")

	_, err = e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID, Date: day(0), Value: -2})
	var verr *habit.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "value", verr.Fields[0].Field)

	c, err := e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID, Date: day(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Value, "value defaults to 1")

	_, err = e.ledger.Update(ctx, habit.DefaultOwner, c.ID, habit.CompletionPatch{Value: ptr(0)})
	assert.ErrorIs(t, err, habit.ErrValidation)
}

func TestLedger_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()

		_, err := e.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: 404, Date: day(0)})
		assert.ErrorIs(t, err, habit.ErrHabitNotFound)

		_, err = e.ledger.Get(ctx, habit.DefaultOwner, 404)
		assert.ErrorIs(t, err, habit.ErrCompletionNotFound)

		_, err = e.ledger.Update(ctx, habit.DefaultOwner, 404, habit.CompletionPatch{Value: ptr(2)})
		assert.ErrorIs(t, err, habit.ErrCompletionNotFound)

		err = e.ledger.Delete(ctx, habit.DefaultOwner, 404)
		assert.ErrorIs(t, err, habit.ErrCompletionNotFound)

		_, err = e.ledger.ListByHabit(ctx, habit.DefaultOwner, 404, habit.Page{})
		assert.ErrorIs(t, err, habit.ErrHabitNotFound)
	})
}

func TestLedger_OtherOwnerCannotSeeCompletions(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Private")
		c := e.complete(t, h.ID, day(0))
		const stranger habit.OwnerID = 2

		_, err := e.ledger.Get(ctx, stranger, c.ID)
		assert.ErrorIs(t, err, habit.ErrCompletionNotFound)

		err = e.ledger.Delete(ctx, stranger, c.ID)
		assert.ErrorIs(t, err, habit.ErrCompletionNotFound)

		_, err = e.ledger.Insert(ctx, stranger, habit.NewCompletion{HabitID: h.ID, Date: day(-1)})
		assert.ErrorIs(t, err, habit.ErrHabitNotFound)

		_, err = e.ledger.Get(ctx, habit.DefaultOwner, c.ID)
		assert.NoError(t, err)
	})
}

func TestLedger_ListByHabit_MostRecentFirstAndPaged(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Log")
		e.complete(t, h.ID, day(-2))
		e.complete(t, h.ID, day(0))
		e.complete(t, h.ID, day(-1))

		all, err := e.ledger.ListByHabit(ctx, habit.DefaultOwner, h.ID, habit.Page{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].Date.Equal(day(0)))
		assert.True(t, all[2].Date.Equal(day(-2)))

		page, err := e.ledger.ListByHabit(ctx, habit.DefaultOwner, h.ID, habit.Page{Offset: 2, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.True(t, page[0].Date.Equal(day(-2)))

		empty, err := e.ledger.ListByHabit(ctx, habit.DefaultOwner, h.ID, habit.Page{Offset: 50})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

// =============================================================================
// ATOMICITY
// =============================================================================

// failingStreakStore fails every SaveStreak so the recompute after a
// mutation fails.
type failingStreakStore struct {
	habit.TxStore
}

var errStoreDown = errors.New("store unavailable")

func (f failingStreakStore) SaveStreak(context.Context, habit.Streak) (habit.Streak, error) {
	return habit.Streak{}, errStoreDown
}

func (f failingStreakStore) WithTx(ctx context.Context, fn func(habit.Store) error) error {
	return f.TxStore.WithTx(ctx, func(s habit.Store) error {
		return fn(failingStreakTx{s})
	})
}

type failingStreakTx struct {
	habit.Store
}

func (failingStreakTx) SaveStreak(context.Context, habit.Streak) (habit.Streak, error) {
	return habit.Streak{}, errStoreDown
}

func TestLedger_FailedRecompute_RollsBackMutation(t *testing.T) {
	backends(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		h := e.mustHabit(t, "Fragile")

		broken := newEngine(failingStreakStore{e.store}, habit.FixedClock(now))
		_, err := broken.ledger.Insert(ctx, habit.DefaultOwner, habit.NewCompletion{HabitID: h.ID, Date: day(0)})
		require.ErrorIs(t, err, errStoreDown)

		list, err := e.ledger.ListByHabit(ctx, habit.DefaultOwner, h.ID, habit.Page{})
		require.NoError(t, err)
		assert.Empty(t, list, "completion must not survive a failed recompute")
	})
}
