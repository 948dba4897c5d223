// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/streak-engine/habit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	// txMu serializes transactions; mu guards the maps for single calls.
	txMu sync.Mutex
	mu   sync.RWMutex
	data data
}

type data struct {
	habits      map[habit.HabitID]habit.Habit
	completions map[habit.CompletionID]habit.Completion
	byDate      map[dateKey]habit.CompletionID
	streaks     map[habit.HabitID]habit.Streak

	nextHabit      int64
	nextCompletion int64
	nextStreak     int64
}

type dateKey struct {
	HabitID habit.HabitID
	Date    string
}

func NewMemory() *Memory {
	return &Memory{data: data{
		habits:      make(map[habit.HabitID]habit.Habit),
		completions: make(map[habit.CompletionID]habit.Completion),
		byDate:      make(map[dateKey]habit.CompletionID),
		streaks:     make(map[habit.HabitID]habit.Streak),
	}}
}

func (d data) clone() data {
	out := d
	out.habits = make(map[habit.HabitID]habit.Habit, len(d.habits))
	for k, v := range d.habits {
		out.habits[k] = v
	}
	out.completions = make(map[habit.CompletionID]habit.Completion, len(d.completions))
	for k, v := range d.completions {
		out.completions[k] = v
	}
	out.byDate = make(map[dateKey]habit.CompletionID, len(d.byDate))
	for k, v := range d.byDate {
		out.byDate[k] = v
	}
	out.streaks = make(map[habit.HabitID]habit.Streak, len(d.streaks))
	for k, v := range d.streaks {
		out.streaks[k] = copyStreak(v)
	}
	return out
}

// WithTx runs fn against the store and restores the previous state if fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(habit.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	err := fn(m)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// HABITS
// =============================================================================

func (m *Memory) InsertHabit(_ context.Context, h habit.Habit) (habit.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.nextHabit++
	h.ID = habit.HabitID(m.data.nextHabit)
	m.data.habits[h.ID] = h
	return h, nil
}

func (m *Memory) GetHabit(_ context.Context, owner habit.OwnerID, id habit.HabitID) (*habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.data.habits[id]
	if !ok || h.OwnerID != owner {
		return nil, nil
	}
	return &h, nil
}

func (m *Memory) ListHabits(_ context.Context, owner habit.OwnerID, page habit.Page) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []habit.Habit
	for _, h := range m.data.habits {
		if h.OwnerID == owner {
			all = append(all, h)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, page), nil
}

func (m *Memory) ListAllHabits(_ context.Context) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]habit.Habit, 0, len(m.data.habits))
	for _, h := range m.data.habits {
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (m *Memory) UpdateHabit(_ context.Context, h habit.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.habits[h.ID]; !ok {
		return fmt.Errorf("update habit %d: %w", h.ID, habit.ErrHabitNotFound)
	}
	m.data.habits[h.ID] = h
	return nil
}

func (m *Memory) DeleteHabit(_ context.Context, owner habit.OwnerID, id habit.HabitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.data.habits[id]
	if !ok || h.OwnerID != owner {
		return nil
	}
	delete(m.data.habits, id)
	delete(m.data.streaks, id)
	for cid, c := range m.data.completions {
		if c.HabitID == id {
			delete(m.data.completions, cid)
			delete(m.data.byDate, dateKey{HabitID: id, Date: c.Date.String()})
		}
	}
	return nil
}

// =============================================================================
// COMPLETIONS
// =============================================================================

func (m *Memory) InsertCompletion(_ context.Context, c habit.Completion) (habit.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.habits[c.HabitID]; !ok {
		return habit.Completion{}, fmt.Errorf("insert completion: %w", habit.ErrHabitNotFound)
	}
	k := dateKey{HabitID: c.HabitID, Date: c.Date.String()}
	if _, taken := m.data.byDate[k]; taken {
		return habit.Completion{}, habit.ErrDuplicateDate
	}

	m.data.nextCompletion++
	c.ID = habit.CompletionID(m.data.nextCompletion)
	m.data.completions[c.ID] = c
	m.data.byDate[k] = c.ID
	return c, nil
}

func (m *Memory) GetCompletion(_ context.Context, id habit.CompletionID) (*habit.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.data.completions[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) FindCompletionByDate(_ context.Context, habitID habit.HabitID, date habit.Date) (*habit.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.data.byDate[dateKey{HabitID: habitID, Date: date.String()}]
	if !ok {
		return nil, nil
	}
	c := m.data.completions[id]
	return &c, nil
}

func (m *Memory) UpdateCompletion(_ context.Context, c habit.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.data.completions[c.ID]
	if !ok {
		return fmt.Errorf("update completion %d: %w", c.ID, habit.ErrCompletionNotFound)
	}
	newKey := dateKey{HabitID: old.HabitID, Date: c.Date.String()}
	if other, taken := m.data.byDate[newKey]; taken && other != c.ID {
		return habit.ErrDuplicateDate
	}

	delete(m.data.byDate, dateKey{HabitID: old.HabitID, Date: old.Date.String()})
	c.HabitID = old.HabitID
	c.CreatedAt = old.CreatedAt
	m.data.completions[c.ID] = c
	m.data.byDate[newKey] = c.ID
	return nil
}

func (m *Memory) DeleteCompletion(_ context.Context, id habit.CompletionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.data.completions[id]
	if !ok {
		return nil
	}
	delete(m.data.completions, id)
	delete(m.data.byDate, dateKey{HabitID: c.HabitID, Date: c.Date.String()})
	return nil
}

func (m *Memory) ListCompletions(_ context.Context, habitID habit.HabitID, page habit.Page) ([]habit.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return window(m.completionsOf(habitID), page), nil
}

func (m *Memory) CompletionDates(_ context.Context, habitID habit.HabitID) ([]habit.Date, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs := m.completionsOf(habitID)
	dates := make([]habit.Date, len(cs))
	for i, c := range cs {
		dates[i] = c.Date
	}
	return dates, nil
}

func (m *Memory) CompletionTotals(_ context.Context, habitID habit.HabitID) (int, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int
	var sum int64
	for _, c := range m.data.completions {
		if c.HabitID == habitID {
			count++
			sum += int64(c.Value)
		}
	}
	return count, sum, nil
}

// completionsOf returns a habit's completions, most recent date first. Caller holds mu.
func (m *Memory) completionsOf(habitID habit.HabitID) []habit.Completion {
	var cs []habit.Completion
	for _, c := range m.data.completions {
		if c.HabitID == habitID {
			cs = append(cs, c)
		}
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Date.After(cs[j].Date) })
	return cs
}

// =============================================================================
// STREAKS
// =============================================================================

func (m *Memory) GetStreak(_ context.Context, habitID habit.HabitID) (*habit.Streak, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.data.streaks[habitID]
	if !ok {
		return nil, nil
	}
	s = copyStreak(s)
	return &s, nil
}

func (m *Memory) SaveStreak(_ context.Context, s habit.Streak) (habit.Streak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.habits[s.HabitID]; !ok {
		return habit.Streak{}, fmt.Errorf("save streak: %w", habit.ErrHabitNotFound)
	}
	if existing, ok := m.data.streaks[s.HabitID]; ok {
		s.ID = existing.ID
	} else {
		m.data.nextStreak++
		s.ID = m.data.nextStreak
	}
	s = copyStreak(s)
	m.data.streaks[s.HabitID] = s
	return copyStreak(s), nil
}

func (m *Memory) ListStaleHabits(_ context.Context, before habit.Date) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []habit.Habit
	for id, h := range m.data.habits {
		s, ok := m.data.streaks[id]
		if !ok || habit.DateOf(s.UpdatedAt).Before(before) {
			stale = append(stale, h)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func copyStreak(s habit.Streak) habit.Streak {
	if s.LastCompletion != nil {
		d := *s.LastCompletion
		s.LastCompletion = &d
	}
	return s
}

func window[T any](items []T, page habit.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
