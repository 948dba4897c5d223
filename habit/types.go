/*
Package habit provides the habit-tracking engine: the completion ledger and
the streak calculator that is kept consistent with it.

PURPOSE:
  Users define habits and log at most one completion per calendar day.
  A streak (current run, longest run, last completion) is derived from the
  completion dates and stored next to the habit. The stored streak is a
  cache: it is recomputed from scratch after every ledger mutation so it can
  never drift from the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Habit: What the user wants to do regularly
  - Completion: One logged day for a habit (unique per habit+date)
  - Streak: Derived state, one per habit
  - OwnerID: Scope every operation runs in

OWNERSHIP:
  A habit exclusively owns its completions and its streak. Deleting the
  habit deletes both. Every operation takes the owner explicitly; the
  deployment decides which owner a request runs as.

GOAL TYPE:
  GoalType and TargetValue are stored and returned but never read by the
  streak calculator. A weekly habit still streaks per day.

SEE ALSO:
  - ledger.go: Completion ledger (writes + recompute)
  - streak.go: Streak derivation algorithm
  - store.go: Persistence interface
*/
package habit

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	OwnerID      int64
	HabitID      int64
	CompletionID int64
)

// DefaultOwner is the single owner of a deployment without authentication.
const DefaultOwner OwnerID = 1

// =============================================================================
// HABIT
// =============================================================================

type GoalType string

const (
	GoalDaily  GoalType = "daily"
	GoalWeekly GoalType = "weekly"
	GoalCustom GoalType = "custom"
)

// Valid reports whether g is one of the known goal types.
func (g GoalType) Valid() bool {
	switch g {
	case GoalDaily, GoalWeekly, GoalCustom:
		return true
	}
	return false
}

type Habit struct {
	ID          HabitID
	OwnerID     OwnerID
	Name        string
	Description string
	Category    string
	GoalType    GoalType
	TargetValue int
	CreatedAt   time.Time
}

// NewHabit is the input for creating a habit.
type NewHabit struct {
	Name        string
	Description string
	Category    string
	GoalType    GoalType
	TargetValue int
}

// HabitPatch is a partial update. Nil fields are left unchanged.
type HabitPatch struct {
	Name        *string
	Description *string
	Category    *string
	GoalType    *GoalType
	TargetValue *int
}

// Apply returns h with the patch applied.
func (p HabitPatch) Apply(h Habit) Habit {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Description != nil {
		h.Description = *p.Description
	}
	if p.Category != nil {
		h.Category = *p.Category
	}
	if p.GoalType != nil {
		h.GoalType = *p.GoalType
	}
	if p.TargetValue != nil {
		h.TargetValue = *p.TargetValue
	}
	return h
}

// =============================================================================
// COMPLETION
// =============================================================================

type Completion struct {
	ID        CompletionID
	HabitID   HabitID
	Date      Date
	Value     int
	Notes     string
	CreatedAt time.Time
}

// NewCompletion is the input for Ledger.Insert. Value 0 means the default of 1.
type NewCompletion struct {
	HabitID HabitID
	Date    Date
	Value   int
	Notes   string
}

// CompletionPatch is a partial update. Nil fields are left unchanged.
type CompletionPatch struct {
	Date  *Date
	Value *int
	Notes *string
}

// =============================================================================
// STREAK
// =============================================================================

// Streak is the derived state of a habit.
//
// INVARIANTS:
//   - CurrentStreak, LongestStreak >= 0
//   - LongestStreak never decreases while the habit exists
//   - LastCompletion is nil iff the habit has no completions (once computed)
type Streak struct {
	ID             int64
	HabitID        HabitID
	CurrentStreak  int
	LongestStreak  int
	LastCompletion *Date
	UpdatedAt      time.Time
}

// =============================================================================
// PAGINATION
// =============================================================================

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page is an offset/limit window.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}
