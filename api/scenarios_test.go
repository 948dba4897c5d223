/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario must load through the ledger and produce the streaks its
	description promises. Loading a second scenario replaces the first.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/streak-engine/habit"
	"github.com/warp/streak-engine/habit/store"
)

func loadTestScenario(t *testing.T, api *testAPI, id string) {
	t.Helper()
	rec := api.do(http.MethodPost, "/api/v1/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func onlyHabit(t *testing.T, api *testAPI, name string) HabitDTO {
	t.Helper()
	rec := api.do(http.MethodGet, "/api/v1/habits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, h := range decodeBody[[]HabitDTO](t, rec) {
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("habit %q not found", name)
	return HabitDTO{}
}

func TestScenarios_Streaks(t *testing.T) {
	tests := []struct {
		scenario string
		habit    string
		current  int
		longest  int
		last     string
	}{
		{"perfect-week", "Meditate", 7, 7, "2025-03-10"},
		{"broken-streak", "Run", 3, 3, "2025-03-10"},
		{"lapsed", "Read", 0, 0, "2025-03-06"},
		{"weekly-goal", "Gym", 1, 1, "2025-03-09"},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			api := newTestAPI(t)
			loadTestScenario(t, api, tt.scenario)

			h := onlyHabit(t, api, tt.habit)
			s := api.streak(h.ID)
			assert.Equal(t, tt.current, s.CurrentStreak)
			assert.Equal(t, tt.longest, s.LongestStreak)
			require.NotNil(t, s.LastCompletion)
			assert.Equal(t, tt.last, s.LastCompletion.String())
		})
	}
}

func TestScenarios_LoadReplacesPrevious(t *testing.T) {
	api := newTestAPI(t)
	loadTestScenario(t, api, "lapsed")
	loadTestScenario(t, api, "perfect-week")

	rec := api.do(http.MethodGet, "/api/v1/habits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	habits := decodeBody[[]HabitDTO](t, rec)
	require.Len(t, habits, 1)
	assert.Equal(t, "Meditate", habits[0].Name)

	rec = api.do(http.MethodGet, "/api/v1/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "perfect-week", decodeBody[ScenarioDTO](t, rec).ID)
}

func TestScenarios_ListAndUnknown(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/v1/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	rec = api.do(http.MethodGet, "/api/v1/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(bytesTrim(rec.Body.Bytes())))

	rec = api.do(http.MethodPost, "/api/v1/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/scenarios/load", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func bytesTrim(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}

// =============================================================================
// REFRESHER
// =============================================================================

func TestStreakRefresher_RunOnce(t *testing.T) {
	// GIVEN: The perfect-week scenario loaded on Mar 10
	// WHEN: The refresher runs with the clock two days later
	// THEN: The stored streak is broken (current 0) and longest stays 7

	st := store.NewMemory()
	h := NewHandler(st, habit.FixedClock(testNow), nil)
	api := &testAPI{t: t, handler: h, router: NewRouter(h, Options{})}
	loadTestScenario(t, api, "perfect-week")
	meditate := onlyHabit(t, api, "Meditate")

	later := NewHandler(st, habit.FixedClock(testNow.Add(48*time.Hour)), nil)
	refresher := NewStreakRefresher(later.Streaks, zaptest.NewLogger(t))
	res := refresher.RunOnce(context.Background())
	assert.Equal(t, 1, res.Recomputed)

	s, err := st.GetStreak(context.Background(), habit.HabitID(meditate.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, 7, s.LongestStreak)
}

func TestStreakRefresher_StartStop(t *testing.T) {
	h := NewHandler(store.NewMemory(), habit.FixedClock(testNow), nil)
	refresher := NewStreakRefresher(h.Streaks, zaptest.NewLogger(t))
	refresher.Interval = 10 * time.Millisecond

	refresher.Start()
	refresher.Start()
	time.Sleep(30 * time.Millisecond)
	refresher.Stop()
	refresher.Stop()
}
