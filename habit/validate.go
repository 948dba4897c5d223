package habit

import (
	"strings"
	"unicode/utf8"
)

const (
	maxNameLen     = 255
	maxCategoryLen = 100
)

// normalizeNewHabit trims input, fills defaults and validates.
func normalizeNewHabit(in NewHabit) (NewHabit, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.GoalType == "" {
		in.GoalType = GoalDaily
	}
	if in.TargetValue == 0 {
		in.TargetValue = 1
	}

	verr := &ValidationError{}
	checkName(verr, in.Name)
	checkCategory(verr, in.Category)
	if !in.GoalType.Valid() {
		verr.Add("goal_type", "must be one of daily, weekly, custom")
	}
	if in.TargetValue < 1 {
		verr.Add("target_value", "must be >= 1")
	}
	return in, verr.OrNil()
}

func validateHabitPatch(p HabitPatch) (HabitPatch, error) {
	verr := &ValidationError{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
		checkName(verr, name)
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		p.Category = &category
		checkCategory(verr, category)
	}
	if p.GoalType != nil && !p.GoalType.Valid() {
		verr.Add("goal_type", "must be one of daily, weekly, custom")
	}
	if p.TargetValue != nil && *p.TargetValue < 1 {
		verr.Add("target_value", "must be >= 1")
	}
	return p, verr.OrNil()
}

func checkName(verr *ValidationError, name string) {
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		verr.Add("name", "is required")
	case n > maxNameLen:
		verr.Add("name", "must be at most 255 characters")
	}
}

func checkCategory(verr *ValidationError, category string) {
	if utf8.RuneCountInString(category) > maxCategoryLen {
		verr.Add("category", "must be at most 100 characters")
	}
}

// normalizeNewCompletion fills the default value and validates.
func normalizeNewCompletion(in NewCompletion) (NewCompletion, error) {
	if in.Value == 0 {
		in.Value = 1
	}
	verr := &ValidationError{}
	if in.Date.IsZero() {
		verr.Add("completion_date", "is required")
	}
	if in.Value < 1 {
		verr.Add("value", "must be >= 1")
	}
	return in, verr.OrNil()
}

func validateCompletionPatch(p CompletionPatch) error {
	verr := &ValidationError{}
	if p.Date != nil && p.Date.IsZero() {
		verr.Add("completion_date", "must not be empty")
	}
	if p.Value != nil && *p.Value < 1 {
		verr.Add("value", "must be >= 1")
	}
	return verr.OrNil()
}
