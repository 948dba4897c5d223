package habit

import (
	"context"
	"fmt"
)

// Registry manages habits. Creating a habit creates its streak in the same
// transaction; deleting one removes its completions and streak.
type Registry struct {
	store TxStore
	calc  *StreakCalculator
}

func NewRegistry(store TxStore, calc *StreakCalculator) *Registry {
	return &Registry{store: store, calc: calc}
}

// Create stores a new habit together with its zero streak.
func (r *Registry) Create(ctx context.Context, owner OwnerID, in NewHabit) (Habit, error) {
	in, err := normalizeNewHabit(in)
	if err != nil {
		return Habit{}, err
	}

	now := r.calc.clock().UTC()
	var out Habit
	err = r.store.WithTx(ctx, func(s Store) error {
		h, err := s.InsertHabit(ctx, Habit{
			OwnerID:     owner,
			Name:        in.Name,
			Description: in.Description,
			Category:    in.Category,
			GoalType:    in.GoalType,
			TargetValue: in.TargetValue,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert habit: %w", err)
		}
		if _, err := s.SaveStreak(ctx, Streak{HabitID: h.ID, UpdatedAt: now}); err != nil {
			return fmt.Errorf("create streak: %w", err)
		}
		out = h
		return nil
	})
	if err != nil {
		return Habit{}, err
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, owner OwnerID, id HabitID) (Habit, error) {
	h, err := r.store.GetHabit(ctx, owner, id)
	if err != nil {
		return Habit{}, fmt.Errorf("get habit: %w", err)
	}
	if h == nil {
		return Habit{}, ErrHabitNotFound
	}
	return *h, nil
}

// List returns a page of the owner's habits ordered by id.
func (r *Registry) List(ctx context.Context, owner OwnerID, page Page) ([]Habit, error) {
	habits, err := r.store.ListHabits(ctx, owner, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// Update applies a partial update. Streaks are unaffected.
func (r *Registry) Update(ctx context.Context, owner OwnerID, id HabitID, patch HabitPatch) (Habit, error) {
	patch, err := validateHabitPatch(patch)
	if err != nil {
		return Habit{}, err
	}

	var out Habit
	err = r.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHabit(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("get habit: %w", err)
		}
		if h == nil {
			return ErrHabitNotFound
		}
		updated := patch.Apply(*h)
		if err := s.UpdateHabit(ctx, updated); err != nil {
			return fmt.Errorf("update habit: %w", err)
		}
		out = updated
		return nil
	})
	if err != nil {
		return Habit{}, err
	}
	return out, nil
}

// Delete removes a habit, its completions and its streak.
func (r *Registry) Delete(ctx context.Context, owner OwnerID, id HabitID) error {
	unlock := r.calc.locks.Lock(int64(id))
	defer unlock()

	return r.store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHabit(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("get habit: %w", err)
		}
		if h == nil {
			return ErrHabitNotFound
		}
		if err := s.DeleteHabit(ctx, owner, id); err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
}
