// Package validation checks submitted values against per-field rules and
// whole configurations for structural soundness.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/formweave/formweave/internal/conditional"
	"github.com/formweave/formweave/model"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Field validates one value against a field's rules and returns the error
// messages, empty when valid. Optional fields with no value pass without
// further checks.
func Field(field *model.FormField, value any) []string {
	return fieldErrors(field, value, field.Validation != nil && field.Validation.Required)
}

func fieldErrors(field *model.FormField, value any, required bool) []string {
	var errs []string
	rules := field.Validation
	empty := valueEmpty(value)

	if required && empty {
		errs = append(errs, fmt.Sprintf("%s is required", labelOf(field)))
		return errs
	}
	if empty || rules == nil {
		return errs
	}

	str := stringValue(value)
	// Length rules only make sense for string values; a number or a list
	// passes them untouched.
	if s, ok := value.(string); ok {
		if rules.MinLength != nil && len([]rune(s)) < *rules.MinLength {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters", labelOf(field), *rules.MinLength))
		}
		if rules.MaxLength != nil && len([]rune(s)) > *rules.MaxLength {
			errs = append(errs, fmt.Sprintf("%s must be at most %d characters", labelOf(field), *rules.MaxLength))
		}
	}
	if (rules.Email || field.Type == model.FieldEmail) && !emailRe.MatchString(str) {
		errs = append(errs, fmt.Sprintf("%s must be a valid email address", labelOf(field)))
	}
	if rules.Pattern != "" {
		if re, err := regexp.Compile(rules.Pattern); err == nil && !re.MatchString(str) {
			errs = append(errs, fmt.Sprintf("%s has an invalid format", labelOf(field)))
		}
	}
	// Numeric bounds are skipped for values that are not numbers; type
	// mismatch is not this layer's complaint.
	if n, ok := numericValue(value); ok {
		if rules.Min != nil && n < *rules.Min {
			errs = append(errs, fmt.Sprintf("%s must be at least %v", labelOf(field), *rules.Min))
		}
		if rules.Max != nil && n > *rules.Max {
			errs = append(errs, fmt.Sprintf("%s must be at most %v", labelOf(field), *rules.Max))
		}
	}
	return errs
}

// Report is the outcome of validating a value map against a configuration.
// Errors are keyed by field id.
type Report struct {
	Errors map[string][]string
}

// IsValid reports whether no field produced an error.
func (r Report) IsValid() bool { return len(r.Errors) == 0 }

// Details flattens the report into field-level error details for the API
// envelope, in step then field order.
func (r Report) Details(cfg *model.FormConfig) []model.FieldError {
	var out []model.FieldError
	for _, f := range cfg.AllFields() {
		for _, msg := range r.Errors[f.ID] {
			out = append(out, model.FieldError{Field: f.Name, Code: "invalid", Message: msg})
		}
	}
	return out
}

// Form validates every field of the configuration. Fields hidden by
// conditional logic are skipped entirely and a require action promotes the
// field to required. Values are keyed by field id.
func Form(cfg *model.FormConfig, values map[string]any) Report {
	return validate(cfg, values, nil)
}

// Step validates only the fields of one step, for per-step progression.
func Step(cfg *model.FormConfig, stepID string, values map[string]any) Report {
	return validate(cfg, values, func(f *model.FormField) bool { return f.StepID == stepID })
}

func validate(cfg *model.FormConfig, values map[string]any, include func(*model.FormField) bool) Report {
	report := Report{Errors: make(map[string][]string)}
	states := conditional.States(cfg, values)
	for _, f := range cfg.AllFields() {
		if include != nil && !include(&f) {
			continue
		}
		state := states[f.ID]
		if !state.Visible {
			continue
		}
		if errs := fieldErrors(&f, values[f.ID], state.Required); len(errs) > 0 {
			report.Errors[f.ID] = errs
		}
	}
	return report
}

// Completion returns the percentage of visible required fields that have a
// value. A form without required fields counts as complete.
func Completion(cfg *model.FormConfig, values map[string]any) int {
	return completion(cfg, values, nil)
}

// StepCompletion is Completion restricted to one step.
func StepCompletion(cfg *model.FormConfig, stepID string, values map[string]any) int {
	return completion(cfg, values, func(f *model.FormField) bool { return f.StepID == stepID })
}

func completion(cfg *model.FormConfig, values map[string]any, include func(*model.FormField) bool) int {
	states := conditional.States(cfg, values)
	total, filled := 0, 0
	for _, f := range cfg.AllFields() {
		if include != nil && !include(&f) {
			continue
		}
		state := states[f.ID]
		if !state.Visible || !state.Required {
			continue
		}
		total++
		if !valueEmpty(values[f.ID]) {
			filled++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(filled) / float64(total) * 100))
}

// CheckConfig validates the structural soundness of an imported or stored
// configuration: step bounds, contiguous ordering, id uniqueness, per-field
// type constraints, and dangling conditional references.
func CheckConfig(cfg *model.FormConfig) []model.FieldError {
	var errs []model.FieldError
	add := func(field, code, msg string) {
		errs = append(errs, model.FieldError{Field: field, Code: code, Message: msg})
	}

	if len(cfg.Steps) == 0 {
		add("steps", "min_steps", "a form needs at least one step")
	}
	if len(cfg.Steps) > model.MaxSteps {
		add("steps", "max_steps", fmt.Sprintf("a form cannot have more than %d steps", model.MaxSteps))
	}

	fieldIDs := make(map[string]bool)
	stepIDs := make(map[string]bool)
	for i, step := range cfg.Steps {
		if step.ID == "" {
			add("steps", "missing_id", fmt.Sprintf("step %d has no id", i))
		} else if stepIDs[step.ID] {
			add("steps", "duplicate_id", fmt.Sprintf("duplicate step id %q", step.ID))
		}
		stepIDs[step.ID] = true
		if step.Order != i {
			add("steps", "bad_order", fmt.Sprintf("step %q has order %d, expected %d", step.ID, step.Order, i))
		}
		for j, f := range step.Fields {
			name := f.Name
			if name == "" {
				name = f.ID
			}
			if f.ID == "" {
				add(name, "missing_id", fmt.Sprintf("field %d of step %q has no id", j, step.ID))
			} else if fieldIDs[f.ID] {
				add(name, "duplicate_id", fmt.Sprintf("duplicate field id %q", f.ID))
			}
			fieldIDs[f.ID] = true
			if f.StepID != step.ID {
				add(name, "bad_binding", fmt.Sprintf("field %q is bound to step %q, not its owner %q", f.ID, f.StepID, step.ID))
			}
			if f.Order != j {
				add(name, "bad_order", fmt.Sprintf("field %q has order %d, expected %d", f.ID, f.Order, j))
			}
			if err := f.Validate(); err != nil {
				add(name, "invalid_field", err.Error())
			}
		}
	}

	for _, f := range cfg.AllFields() {
		if cl := f.ConditionalLogic; cl != nil && cl.Enabled {
			for _, r := range cl.Rules {
				if !fieldIDs[r.TargetFieldID] {
					add(f.Name, "dangling_reference",
						fmt.Sprintf("conditional rule on %q targets unknown field %q", f.ID, r.TargetFieldID))
				}
			}
		}
	}
	for _, step := range cfg.Steps {
		if v := step.Verification; v != nil && v.Enabled {
			if v.Endpoint == "" {
				add("verification", "missing_endpoint", fmt.Sprintf("step %q verification has no endpoint", step.ID))
			}
			for _, m := range v.FieldMappings {
				if !fieldIDs[m.FieldID] {
					add("verification", "dangling_reference",
						fmt.Sprintf("step %q verification maps unknown field %q", step.ID, m.FieldID))
				}
			}
		}
	}
	return errs
}

func labelOf(f *model.FormField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func valueEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
