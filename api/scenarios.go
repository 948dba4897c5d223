/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the owner's habits with
  realistic history. Dates are relative to today, so a scenario shows the
  same streaks whenever it is loaded.

AVAILABLE SCENARIOS:
  perfect-week:   Meditation done every day for 7 days, streak 7
  broken-streak:  Running with an old run and a gap, current 3
  lapsed:         Reading last done 4 days ago, current 0
  weekly-goal:    A weekly habit, streaked per day like any other

HOW SCENARIOS WORK:
  1. Delete every habit of the owner (completions and streaks go with them)
  2. Create habits through the registry
  3. Log completions through the ledger, oldest first

  Everything goes through the same ledger as API writes, so streaks are
  exactly what a user logging those days would see.

USAGE VIA API:
  POST /api/v1/scenarios/load
  {"scenario_id": "perfect-week"}

NOTE:
  Loading a scenario deletes the owner's habits. Only use in development.

SEE ALSO:
  - handlers.go: Handler dependencies
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/streak-engine/habit"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// seedHabit is one habit of a scenario and the days it was completed,
// as offsets from today (0 = today, -1 = yesterday).
type seedHabit struct {
	habit habit.NewHabit
	days  []int
	value int
	note  string
}

type scenario struct {
	ScenarioDTO
	habits []seedHabit
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "perfect-week",
			Name:        "Perfect Week",
			Description: "Meditation completed every day for the last 7 days",
		},
		habits: []seedHabit{
			{
				habit: habit.NewHabit{Name: "Meditate", Description: "10 minutes", Category: "mindfulness"},
				days:  []int{-6, -5, -4, -3, -2, -1, 0},
			},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "broken-streak",
			Name:        "Broken Streak",
			Description: "An old five day run, a gap, then three days ending today",
		},
		habits: []seedHabit{
			{
				habit: habit.NewHabit{Name: "Run", Description: "5k", Category: "fitness"},
				days:  []int{-9, -8, -7, -6, -5, -2, -1, 0},
				value: 5,
			},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "lapsed",
			Name:        "Lapsed Habit",
			Description: "Reading done three days in a row, last time four days ago",
		},
		habits: []seedHabit{
			{
				habit: habit.NewHabit{Name: "Read", Description: "20 pages", Category: "learning"},
				days:  []int{-6, -5, -4},
				note:  "before bed",
			},
			{
				habit: habit.NewHabit{Name: "Floss", Category: "health"},
			},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "weekly-goal",
			Name:        "Weekly Goal",
			Description: "A weekly habit with target 3; streaks still count days",
		},
		habits: []seedHabit{
			{
				habit: habit.NewHabit{Name: "Gym", Category: "fitness", GoalType: habit.GoalWeekly, TargetValue: 3},
				days:  []int{-5, -3, -1},
			},
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// scenarioState tracks the last loaded scenario.
type scenarioState struct {
	mu      sync.Mutex
	current string
}

func (s *scenarioState) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scenarioState) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := findScenario(h.scenario.get())
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario replaces the owner's habits with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", "unknown_scenario", req.ScenarioID)
		return
	}

	created, err := h.loadScenario(r.Context(), ownerFrom(r.Context()), s)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("load scenario %s: %w", s.ID, err))
		return
	}
	h.scenario.set(s.ID)
	h.Logger.Info("scenario loaded", zap.String("scenario", s.ID), zap.Int("habits", created))

	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded", "scenario": s.ID, "habits": created})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, owner habit.OwnerID, s scenario) (int, error) {
	if err := h.clearHabits(ctx, owner); err != nil {
		return 0, err
	}

	today := h.Streaks.Today()
	for _, seed := range s.habits {
		created, err := h.Registry.Create(ctx, owner, seed.habit)
		if err != nil {
			return 0, fmt.Errorf("create habit %q: %w", seed.habit.Name, err)
		}
		for _, offset := range seed.days {
			_, err := h.Ledger.Insert(ctx, owner, habit.NewCompletion{
				HabitID: created.ID,
				Date:    today.AddDays(offset),
				Value:   seed.value,
				Notes:   seed.note,
			})
			if err != nil {
				return 0, fmt.Errorf("log %q on day %d: %w", seed.habit.Name, offset, err)
			}
		}
	}
	return len(s.habits), nil
}

func (h *Handler) clearHabits(ctx context.Context, owner habit.OwnerID) error {
	for {
		habits, err := h.Registry.List(ctx, owner, habit.Page{Limit: habit.MaxPageLimit})
		if err != nil {
			return err
		}
		if len(habits) == 0 {
			return nil
		}
		for _, hb := range habits {
			if err := h.Registry.Delete(ctx, owner, hb.ID); err != nil && !habit.IsNotFound(err) {
				return fmt.Errorf("delete habit %d: %w", hb.ID, err)
			}
		}
	}
}
