/*
store.go - Persistence interface for habits, completions and streaks

PURPOSE:
  Defines the interface between the engine and the database. The store is a
  plain key-indexed record store: get/list/insert/update/delete by integer
  id, plus the one uniqueness constraint the ledger relies on.

UNIQUENESS:
  InsertCompletion and UpdateCompletion MUST return an error wrapping
  ErrDuplicateDate when (habit_id, date) already exists. The ledger checks
  first for a friendly error; the constraint is what makes it safe.

ATOMICITY:
  TxStore.WithTx runs fn against a Store bound to one transaction. If fn
  returns an error nothing fn wrote is kept. The ledger runs every mutation
  and the streak recompute that follows it inside one WithTx.

OWNERSHIP:
  Habit reads are owner-scoped. Completion and streak methods are keyed by
  id only; callers resolve the owning habit first.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with goose migrations
  - habit/store/memory.go: In-memory for tests and dev
*/
package habit

import "context"

// Store handles persistence of habits, completions and streaks.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// Habits
	InsertHabit(ctx context.Context, h Habit) (Habit, error)
	GetHabit(ctx context.Context, owner OwnerID, id HabitID) (*Habit, error)
	ListHabits(ctx context.Context, owner OwnerID, page Page) ([]Habit, error)
	// ListAllHabits returns every habit of every owner, ordered by id.
	ListAllHabits(ctx context.Context) ([]Habit, error)
	UpdateHabit(ctx context.Context, h Habit) error
	// DeleteHabit removes the habit with its completions and streak.
	DeleteHabit(ctx context.Context, owner OwnerID, id HabitID) error

	// Completions
	InsertCompletion(ctx context.Context, c Completion) (Completion, error)
	GetCompletion(ctx context.Context, id CompletionID) (*Completion, error)
	FindCompletionByDate(ctx context.Context, habitID HabitID, date Date) (*Completion, error)
	UpdateCompletion(ctx context.Context, c Completion) error
	DeleteCompletion(ctx context.Context, id CompletionID) error
	// ListCompletions returns completions ordered by date descending.
	ListCompletions(ctx context.Context, habitID HabitID, page Page) ([]Completion, error)
	// CompletionDates returns every completion date of a habit, descending.
	CompletionDates(ctx context.Context, habitID HabitID) ([]Date, error)
	// CompletionTotals returns the number of completions and the sum of their values.
	CompletionTotals(ctx context.Context, habitID HabitID) (count int, valueSum int64, err error)

	// Streaks
	GetStreak(ctx context.Context, habitID HabitID) (*Streak, error)
	// SaveStreak inserts or replaces the streak of s.HabitID.
	SaveStreak(ctx context.Context, s Streak) (Streak, error)
	// ListStaleHabits returns habits whose streak was last updated before the
	// given date or that have no streak row at all, ordered by id.
	ListStaleHabits(ctx context.Context, before Date) ([]Habit, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
