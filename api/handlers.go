/*
handlers.go - HTTP API handlers for the habit tracker

PURPOSE:
  Exposes the habit engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates to the registry, ledger and calculator.

ENDPOINTS (all under /api/v1):
  Habits:
    POST   /habits                      Create habit (201)
    GET    /habits?skip=&limit=         List habits
    GET    /habits/{id}                 Get habit
    PUT    /habits/{id}                 Partial update
    DELETE /habits/{id}                 Delete habit, completions and streak (204)
    GET    /habits/{id}/stats           Completion statistics

  Completions:
    POST   /completions                 Log a completion (201, 404, 409)
    GET    /completions/habit/{habit_id} List a habit's completions, newest first
    GET    /completions/{id}            Get completion
    PUT    /completions/{id}            Partial update (409 on date clash)
    DELETE /completions/{id}            Delete completion (204)

  Streaks:
    GET    /streaks/{habit_id}             Stored streak, computed on first read
    POST   /streaks/{habit_id}/recalculate Recompute and return the streak

OWNER:
  Every handler runs as the owner placed in the request context by
  OwnerMiddleware.

ERROR HANDLING:
  Errors are returned as ErrorResponse JSON by respondError:
  - 400: Validation errors, malformed JSON, bad path ids
  - 404: Habit or completion not found
  - 409: Completion already exists for the habit on that date
  - 500: Store failures (logged, details withheld)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/streak-engine/habit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry *habit.Registry
	Ledger   *habit.Ledger
	Streaks  *habit.StreakCalculator
	Logger   *zap.Logger

	ping     func(context.Context) error
	validate *validator.Validate
	scenario scenarioState
}

// pinger is implemented by stores that can report their health.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler wires the habit engine over store. A nil clock means the system
// clock; a nil logger discards logs.
func NewHandler(store habit.TxStore, clock habit.Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	calc := habit.NewStreakCalculator(store, clock)
	h := &Handler{
		Registry: habit.NewRegistry(store, calc),
		Ledger:   habit.NewLedger(store, calc),
		Streaks:  calc,
		Logger:   logger,
		validate: newValidator(),
	}
	if p, ok := store.(pinger); ok {
		h.ping = p.Ping
	}
	return h
}

// =============================================================================
// HABIT ENDPOINTS
// =============================================================================

// CreateHabit creates a habit and its zero streak.
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req CreateHabitRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.Registry.Create(r.Context(), ownerFrom(r.Context()), req.toDomain())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHabitDTO(created))
}

// ListHabits returns a page of the owner's habits.
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	page, err := h.parsePage(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	habits, err := h.Registry.List(r.Context(), ownerFrom(r.Context()), page)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]HabitDTO, len(habits))
	for i, hb := range habits {
		out[i] = toHabitDTO(hb)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHabit returns one habit.
func (h *Handler) GetHabit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	hb, err := h.Registry.Get(r.Context(), ownerFrom(r.Context()), habit.HabitID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitDTO(hb))
}

// UpdateHabit applies a partial update.
func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateHabitRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.Registry.Update(r.Context(), ownerFrom(r.Context()), habit.HabitID(id), req.toDomain())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitDTO(updated))
}

// DeleteHabit removes a habit with its completions and streak.
func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Registry.Delete(r.Context(), ownerFrom(r.Context()), habit.HabitID(id)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHabitStats returns completion statistics for a habit.
func (h *Handler) GetHabitStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.Registry.Stats(r.Context(), ownerFrom(r.Context()), habit.HabitID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// =============================================================================
// COMPLETION ENDPOINTS
// =============================================================================

// CreateCompletion logs a completion and returns it with 201.
func (h *Handler) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	var req CreateCompletionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.Ledger.Insert(r.Context(), ownerFrom(r.Context()), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompletionDTO(c))
}

// ListCompletionsByHabit returns a page of a habit's completions.
func (h *Handler) ListCompletionsByHabit(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(w, r, "habit_id")
	if !ok {
		return
	}
	page, err := h.parsePage(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	cs, err := h.Ledger.ListByHabit(r.Context(), ownerFrom(r.Context()), habit.HabitID(habitID), page)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionDTOs(cs))
}

// GetCompletion returns one completion.
func (h *Handler) GetCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.Ledger.Get(r.Context(), ownerFrom(r.Context()), habit.CompletionID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionDTO(c))
}

// UpdateCompletion applies a partial update to a completion.
func (h *Handler) UpdateCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateCompletionRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.toDomain()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.Ledger.Update(r.Context(), ownerFrom(r.Context()), habit.CompletionID(id), patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionDTO(c))
}

// DeleteCompletion removes a completion.
func (h *Handler) DeleteCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Ledger.Delete(r.Context(), ownerFrom(r.Context()), habit.CompletionID(id)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STREAK ENDPOINTS
// =============================================================================

// GetStreak returns the stored streak, computing it on first read.
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(w, r, "habit_id")
	if !ok {
		return
	}

	s, err := h.Streaks.GetOrCompute(r.Context(), ownerFrom(r.Context()), habit.HabitID(habitID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakDTO(s))
}

// RecalculateStreak recomputes a streak from the ledger.
func (h *Handler) RecalculateStreak(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(w, r, "habit_id")
	if !ok {
		return
	}

	s, err := h.Streaks.Recompute(r.Context(), ownerFrom(r.Context()), habit.HabitID(habitID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakDTO(s))
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

// Root reports that the API is up.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "streakd API is running"})
}

// Health reports store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.Logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// respondError maps habit errors to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *habit.ValidationError
		dup  *habit.DuplicateDateError
	)
	switch {
	case errors.As(err, &verr):
		details := make([]FieldErrorDTO, len(verr.Fields))
		for i, f := range verr.Fields {
			details[i] = FieldErrorDTO{Field: f.Field, Message: f.Message}
		}
		writeError(w, http.StatusBadRequest, "Validation failed", "validation_error", details)
	case errors.Is(err, habit.ErrHabitNotFound):
		writeError(w, http.StatusNotFound, "Habit not found", "habit_not_found", nil)
	case errors.Is(err, habit.ErrCompletionNotFound):
		writeError(w, http.StatusNotFound, "Completion not found", "completion_not_found", nil)
	case errors.As(err, &dup):
		details := map[string]any{
			"habit_id":        dup.HabitID,
			"completion_date": dup.Date,
		}
		if dup.ExistingID != 0 {
			details["existing_id"] = dup.ExistingID
		}
		writeError(w, http.StatusConflict, "Completion already exists for this habit on this date", "duplicate_date", details)
	case errors.Is(err, habit.ErrDuplicateDate):
		writeError(w, http.StatusConflict, "Completion already exists for this habit on this date", "duplicate_date", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		w.WriteHeader(499)
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, r, validationError(err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid "+param, "invalid_id", nil)
		return 0, false
	}
	return id, true
}
