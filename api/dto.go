/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the habit package's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, lengths, date layout). Semantic rules (trimmed name not empty,
  defaults) are enforced by the habit package and surface the same way.

DATES:
  completion_date and last_completion are "YYYY-MM-DD". Timestamps are
  RFC3339 in UTC.

SEE ALSO:
  - handlers.go: Uses these types
  - habit/types.go: Domain types
*/
package api

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/streak-engine/habit"
)

// =============================================================================
// HABITS
// =============================================================================

// HabitDTO represents a habit in API responses.
type HabitDTO struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	GoalType    string `json:"goal_type"`
	TargetValue int    `json:"target_value"`
	CreatedAt   string `json:"created_at"`
}

// CreateHabitRequest is the request to create a habit.
type CreateHabitRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"max=100"`
	GoalType    string `json:"goal_type" validate:"omitempty,oneof=daily weekly custom"`
	TargetValue int    `json:"target_value" validate:"omitempty,min=1"`
}

// UpdateHabitRequest carries the fields to change. Absent fields are kept.
type UpdateHabitRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	GoalType    *string `json:"goal_type" validate:"omitempty,oneof=daily weekly custom"`
	TargetValue *int    `json:"target_value" validate:"omitempty,min=1"`
}

func (r CreateHabitRequest) toDomain() habit.NewHabit {
	return habit.NewHabit{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		GoalType:    habit.GoalType(r.GoalType),
		TargetValue: r.TargetValue,
	}
}

func (r UpdateHabitRequest) toDomain() habit.HabitPatch {
	p := habit.HabitPatch{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		TargetValue: r.TargetValue,
	}
	if r.GoalType != nil {
		g := habit.GoalType(*r.GoalType)
		p.GoalType = &g
	}
	return p
}

func toHabitDTO(h habit.Habit) HabitDTO {
	return HabitDTO{
		ID:          int64(h.ID),
		UserID:      int64(h.OwnerID),
		Name:        h.Name,
		Description: h.Description,
		Category:    h.Category,
		GoalType:    string(h.GoalType),
		TargetValue: h.TargetValue,
		CreatedAt:   formatTimestamp(h.CreatedAt),
	}
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// CompletionDTO represents a completion in API responses.
type CompletionDTO struct {
	ID             int64      `json:"id"`
	HabitID        int64      `json:"habit_id"`
	CompletionDate habit.Date `json:"completion_date"`
	Value          int        `json:"value"`
	Notes          string     `json:"notes"`
	CreatedAt      string     `json:"created_at"`
}

// CreateCompletionRequest logs a completion. Value defaults to 1.
type CreateCompletionRequest struct {
	HabitID        int64  `json:"habit_id" validate:"required,min=1"`
	CompletionDate string `json:"completion_date" validate:"required,datetime=2006-01-02"`
	Value          *int   `json:"value" validate:"omitempty,min=1"`
	Notes          string `json:"notes"`
}

// UpdateCompletionRequest carries the fields to change.
type UpdateCompletionRequest struct {
	CompletionDate *string `json:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	Value          *int    `json:"value" validate:"omitempty,min=1"`
	Notes          *string `json:"notes"`
}

func (r CreateCompletionRequest) toDomain() (habit.NewCompletion, error) {
	date, err := habit.ParseDate(r.CompletionDate)
	if err != nil {
		return habit.NewCompletion{}, fieldError("completion_date", "must be a date in YYYY-MM-DD format")
	}
	in := habit.NewCompletion{
		HabitID: habit.HabitID(r.HabitID),
		Date:    date,
		Notes:   r.Notes,
	}
	if r.Value != nil {
		in.Value = *r.Value
	}
	return in, nil
}

func (r UpdateCompletionRequest) toDomain() (habit.CompletionPatch, error) {
	p := habit.CompletionPatch{Value: r.Value, Notes: r.Notes}
	if r.CompletionDate != nil {
		date, err := habit.ParseDate(*r.CompletionDate)
		if err != nil {
			return habit.CompletionPatch{}, fieldError("completion_date", "must be a date in YYYY-MM-DD format")
		}
		p.Date = &date
	}
	return p, nil
}

func toCompletionDTO(c habit.Completion) CompletionDTO {
	return CompletionDTO{
		ID:             int64(c.ID),
		HabitID:        int64(c.HabitID),
		CompletionDate: c.Date,
		Value:          c.Value,
		Notes:          c.Notes,
		CreatedAt:      formatTimestamp(c.CreatedAt),
	}
}

func toCompletionDTOs(cs []habit.Completion) []CompletionDTO {
	out := make([]CompletionDTO, len(cs))
	for i, c := range cs {
		out[i] = toCompletionDTO(c)
	}
	return out
}

// =============================================================================
// STREAKS AND STATS
// =============================================================================

// StreakDTO represents a habit's streak. last_completion is null until the
// habit has a completion.
type StreakDTO struct {
	ID             int64       `json:"id"`
	HabitID        int64       `json:"habit_id"`
	CurrentStreak  int         `json:"current_streak"`
	LongestStreak  int         `json:"longest_streak"`
	LastCompletion *habit.Date `json:"last_completion"`
	UpdatedAt      string      `json:"updated_at"`
}

func toStreakDTO(s habit.Streak) StreakDTO {
	return StreakDTO{
		ID:             s.ID,
		HabitID:        int64(s.HabitID),
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		LastCompletion: s.LastCompletion,
		UpdatedAt:      formatTimestamp(s.UpdatedAt),
	}
}

// StatsDTO summarizes a habit's history.
type StatsDTO struct {
	HabitID          int64           `json:"habit_id"`
	TotalCompletions int             `json:"total_completions"`
	TotalValue       int64           `json:"total_value"`
	FirstCompletion  *habit.Date     `json:"first_completion"`
	LastCompletion   *habit.Date     `json:"last_completion"`
	ActiveDays       int             `json:"active_days"`
	CompletionRate   decimal.Decimal `json:"completion_rate"`
	Streak           StreakDTO       `json:"streak"`
}

func toStatsDTO(s habit.Stats) StatsDTO {
	return StatsDTO{
		HabitID:          int64(s.HabitID),
		TotalCompletions: s.TotalCompletions,
		TotalValue:       s.TotalValue,
		FirstCompletion:  s.FirstCompletion,
		LastCompletion:   s.LastCompletion,
		ActiveDays:       s.ActiveDays,
		CompletionRate:   s.CompletionRate,
		Streak:           toStreakDTO(s.Streak),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldErrorDTO is one rejected request field.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// VALIDATION AND PAGINATION
// =============================================================================

// pageQuery holds the skip/limit query parameters.
type pageQuery struct {
	Skip  int `json:"skip" validate:"min=0"`
	Limit int `json:"limit" validate:"min=1,max=1000"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts validator output into a habit.ValidationError so
// every rejected input is reported the same way.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &habit.ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), describeTag(fe))
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be <= " + fe.Param()
	case "min":
		return "must be >= " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	default:
		return "is invalid"
	}
}

func fieldError(field, message string) error {
	verr := &habit.ValidationError{}
	verr.Add(field, message)
	return verr
}

// parsePage reads ?skip=&limit= (defaults 0 and 100).
func (h *Handler) parsePage(r *http.Request) (habit.Page, error) {
	q := pageQuery{Skip: 0, Limit: habit.DefaultPageLimit}
	verr := &habit.ValidationError{}
	if s := r.URL.Query().Get("skip"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			verr.Add("skip", "must be an integer")
		}
		q.Skip = n
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			verr.Add("limit", "must be an integer")
		}
		q.Limit = n
	}
	if err := verr.OrNil(); err != nil {
		return habit.Page{}, err
	}
	if err := h.validate.Struct(q); err != nil {
		return habit.Page{}, validationError(err)
	}
	return habit.Page{Offset: q.Skip, Limit: q.Limit}, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
