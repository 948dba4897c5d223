package habit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/warp/streak-engine/habit"
	"github.com/warp/streak-engine/habit/store"
	"github.com/warp/streak-engine/store/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

// now is 2025-03-10 12:00 UTC in every test.
var now = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// day returns the date n days from today (negative for the past).
func day(n int) habit.Date {
	return habit.DateOf(now).AddDays(n)
}

type engine struct {
	store    habit.TxStore
	calc     *habit.StreakCalculator
	ledger   *habit.Ledger
	registry *habit.Registry
}

func newEngine(st habit.TxStore, clock habit.Clock) *engine {
	calc := habit.NewStreakCalculator(st, clock)
	return &engine{
		store:    st,
		calc:     calc,
		ledger:   habit.NewLedger(st, calc),
		registry: habit.NewRegistry(st, calc),
	}
}

func newMemoryEngine(t *testing.T) *engine {
	t.Helper()
	return newEngine(store.NewMemory(), habit.FixedClock(now))
}

// backends runs fn against every store implementation.
func backends(t *testing.T, fn func(t *testing.T, e *engine)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newMemoryEngine(t))
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, newEngine(db, habit.FixedClock(now)))
	})
}

func (e *engine) mustHabit(t *testing.T, name string) habit.Habit {
	t.Helper()
	return e.ownedHabit(t, habit.DefaultOwner, name)
}

func (e *engine) ownedHabit(t *testing.T, owner habit.OwnerID, name string) habit.Habit {
	t.Helper()
	h, err := e.registry.Create(context.Background(), owner, habit.NewHabit{Name: name})
	require.NoError(t, err)
	return h
}

func (e *engine) complete(t *testing.T, habitID habit.HabitID, date habit.Date) habit.Completion {
	t.Helper()
	c, err := e.ledger.Insert(context.Background(), habit.DefaultOwner, habit.NewCompletion{
		HabitID: habitID,
		Date:    date,
	})
	require.NoError(t, err)
	return c
}

func (e *engine) streak(t *testing.T, habitID habit.HabitID) habit.Streak {
	t.Helper()
	s, err := e.calc.GetOrCompute(context.Background(), habit.DefaultOwner, habitID)
	require.NoError(t, err)
	return s
}

func ptr[T any](v T) *T { return &v }
