package habit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stats summarizes a habit's history. Read only: computing stats never
// touches the stored streak except through the lazy first read.
type Stats struct {
	HabitID          HabitID
	TotalCompletions int
	TotalValue       int64
	FirstCompletion  *Date
	LastCompletion   *Date
	// ActiveDays spans the first completion through today (or the last
	// completion if it is later), inclusive.
	ActiveDays int
	// CompletionRate is TotalCompletions / ActiveDays, rounded to 4 places.
	CompletionRate decimal.Decimal
	Streak         Streak
}

// Stats computes the statistics of one habit.
func (r *Registry) Stats(ctx context.Context, owner OwnerID, id HabitID) (Stats, error) {
	streak, err := r.calc.GetOrCompute(ctx, owner, id)
	if err != nil {
		return Stats{}, err
	}

	count, sum, err := r.store.CompletionTotals(ctx, id)
	if err != nil {
		return Stats{}, fmt.Errorf("completion totals: %w", err)
	}
	dates, err := r.store.CompletionDates(ctx, id)
	if err != nil {
		return Stats{}, fmt.Errorf("completion dates: %w", err)
	}

	st := Stats{
		HabitID:          id,
		TotalCompletions: count,
		TotalValue:       sum,
		CompletionRate:   decimal.Zero,
		Streak:           streak,
	}
	if len(dates) == 0 {
		return st, nil
	}

	last, first := dates[0], dates[len(dates)-1]
	st.FirstCompletion = &first
	st.LastCompletion = &last

	end := r.calc.Today()
	if last.After(end) {
		end = last
	}
	st.ActiveDays = DaysBetween(first, end) + 1
	st.CompletionRate = decimal.NewFromInt(int64(count)).
		DivRound(decimal.NewFromInt(int64(st.ActiveDays)), 4)
	return st, nil
}
