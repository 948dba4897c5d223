/*
ledger.go - Completion ledger with one-per-day enforcement

PURPOSE:
  The ledger is the only writer of completions. It enforces the habit's
  one-completion-per-day invariant and keeps the stored streak consistent
  with the completions it holds.

INVARIANT:
  At most one completion per (HabitID, Date).

  Checked twice: a lookup before writing (to report which completion is in
  the way) and the store's unique constraint (so two writers can never both
  pass). A violation leaves the store unchanged.

CONSISTENCY CONTRACT:
  Every successful Insert, Update or Delete recomputes the habit's streak
  in the SAME store transaction before returning. If the recompute fails
  the mutation is rolled back, so callers never observe a stale streak.

SERIALIZATION:
  All writers of one habit (ledger mutations, manual recompute, lazy first
  read, habit delete) take the habit's lock from the StreakCalculator.
  Different habits never wait on each other.

EXAMPLE:
  calc := habit.NewStreakCalculator(store, nil)
  ledger := habit.NewLedger(store, calc)

  c, err := ledger.Insert(ctx, owner, habit.NewCompletion{HabitID: 7, Date: today})
  if errors.Is(err, habit.ErrDuplicateDate) {
      // already logged today
  }

SEE ALSO:
  - streak.go: Derivation run after every mutation
  - store.go: Unique constraint contract
*/
package habit

import (
	"context"
	"errors"
	"fmt"
)

// Ledger owns the completions of every habit.
type Ledger struct {
	store TxStore
	calc  *StreakCalculator
}

// NewLedger creates a ledger that recomputes streaks through calc.
func NewLedger(store TxStore, calc *StreakCalculator) *Ledger {
	return &Ledger{store: store, calc: calc}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Insert logs a completion.
// Returns ErrHabitNotFound or a *DuplicateDateError on failure.
func (l *Ledger) Insert(ctx context.Context, owner OwnerID, in NewCompletion) (Completion, error) {
	out, err := l.insert(ctx, owner, in)
	observeLedgerOp("insert", err)
	return out, err
}

func (l *Ledger) insert(ctx context.Context, owner OwnerID, in NewCompletion) (Completion, error) {
	in, err := normalizeNewCompletion(in)
	if err != nil {
		return Completion{}, err
	}

	unlock := l.calc.locks.Lock(int64(in.HabitID))
	defer unlock()

	var out Completion
	err = l.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHabit(ctx, owner, in.HabitID)
		if err != nil {
			return fmt.Errorf("get habit: %w", err)
		}
		if h == nil {
			return ErrHabitNotFound
		}

		if err := checkDateFree(ctx, s, in.HabitID, in.Date, 0); err != nil {
			return err
		}

		c, err := s.InsertCompletion(ctx, Completion{
			HabitID:   in.HabitID,
			Date:      in.Date,
			Value:     in.Value,
			Notes:     in.Notes,
			CreatedAt: l.calc.clock().UTC(),
		})
		if err != nil {
			return wrapDuplicate(err, in.HabitID, in.Date, "insert completion")
		}

		if _, err := l.calc.recomputeIn(ctx, s, in.HabitID, triggerMutation); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return out, nil
}

// Update changes the supplied fields of a completion.
// Returns ErrCompletionNotFound or a *DuplicateDateError on failure.
func (l *Ledger) Update(ctx context.Context, owner OwnerID, id CompletionID, patch CompletionPatch) (Completion, error) {
	out, err := l.update(ctx, owner, id, patch)
	observeLedgerOp("update", err)
	return out, err
}

func (l *Ledger) update(ctx context.Context, owner OwnerID, id CompletionID, patch CompletionPatch) (Completion, error) {
	if err := validateCompletionPatch(patch); err != nil {
		return Completion{}, err
	}

	habitID, err := l.habitOf(ctx, id)
	if err != nil {
		return Completion{}, err
	}

	unlock := l.calc.locks.Lock(int64(habitID))
	defer unlock()

	var out Completion
	err = l.store.WithTx(ctx, func(s Store) error {
		c, err := loadOwnedCompletion(ctx, s, owner, id)
		if err != nil {
			return err
		}

		if patch.Date != nil && !patch.Date.Equal(c.Date) {
			if err := checkDateFree(ctx, s, c.HabitID, *patch.Date, c.ID); err != nil {
				return err
			}
			c.Date = *patch.Date
		}
		if patch.Value != nil {
			c.Value = *patch.Value
		}
		if patch.Notes != nil {
			c.Notes = *patch.Notes
		}

		if err := s.UpdateCompletion(ctx, *c); err != nil {
			return wrapDuplicate(err, c.HabitID, c.Date, "update completion")
		}

		if _, err := l.calc.recomputeIn(ctx, s, c.HabitID, triggerMutation); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return out, nil
}

// Delete removes a completion. Returns ErrCompletionNotFound if it does not exist.
func (l *Ledger) Delete(ctx context.Context, owner OwnerID, id CompletionID) error {
	err := l.delete(ctx, owner, id)
	observeLedgerOp("delete", err)
	return err
}

func (l *Ledger) delete(ctx context.Context, owner OwnerID, id CompletionID) error {
	habitID, err := l.habitOf(ctx, id)
	if err != nil {
		return err
	}

	unlock := l.calc.locks.Lock(int64(habitID))
	defer unlock()

	return l.store.WithTx(ctx, func(s Store) error {
		c, err := loadOwnedCompletion(ctx, s, owner, id)
		if err != nil {
			return err
		}
		if err := s.DeleteCompletion(ctx, c.ID); err != nil {
			return fmt.Errorf("delete completion: %w", err)
		}
		_, err = l.calc.recomputeIn(ctx, s, c.HabitID, triggerMutation)
		return err
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one completion of the owner.
func (l *Ledger) Get(ctx context.Context, owner OwnerID, id CompletionID) (Completion, error) {
	c, err := loadOwnedCompletion(ctx, l.store, owner, id)
	if err != nil {
		return Completion{}, err
	}
	return *c, nil
}

// ListByHabit returns a page of a habit's completions, most recent date first.
func (l *Ledger) ListByHabit(ctx context.Context, owner OwnerID, habitID HabitID, page Page) ([]Completion, error) {
	h, err := l.store.GetHabit(ctx, owner, habitID)
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	if h == nil {
		return nil, ErrHabitNotFound
	}
	completions, err := l.store.ListCompletions(ctx, habitID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return completions, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// habitOf resolves the habit a completion belongs to, before taking its lock.
// Ownership is checked again under the lock.
func (l *Ledger) habitOf(ctx context.Context, id CompletionID) (HabitID, error) {
	c, err := l.store.GetCompletion(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get completion: %w", err)
	}
	if c == nil {
		return 0, ErrCompletionNotFound
	}
	return c.HabitID, nil
}

func loadOwnedCompletion(ctx context.Context, s Store, owner OwnerID, id CompletionID) (*Completion, error) {
	c, err := s.GetCompletion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if c == nil {
		return nil, ErrCompletionNotFound
	}
	h, err := s.GetHabit(ctx, owner, c.HabitID)
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	if h == nil {
		return nil, ErrCompletionNotFound
	}
	return c, nil
}

// checkDateFree fails if habitID already has a completion on date other than self.
func checkDateFree(ctx context.Context, s Store, habitID HabitID, date Date, self CompletionID) error {
	existing, err := s.FindCompletionByDate(ctx, habitID, date)
	if err != nil {
		return fmt.Errorf("find completion by date: %w", err)
	}
	if existing != nil && existing.ID != self {
		return &DuplicateDateError{HabitID: habitID, Date: date, ExistingID: existing.ID}
	}
	return nil
}

func wrapDuplicate(err error, habitID HabitID, date Date, op string) error {
	if errors.Is(err, ErrDuplicateDate) {
		return &DuplicateDateError{HabitID: habitID, Date: date}
	}
	return fmt.Errorf("%s: %w", op, err)
}
