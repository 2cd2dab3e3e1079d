// Package conditional evaluates per-field conditional logic against the
// current value map and resolves each field's effective state.
package conditional

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/formweave/formweave/model"
)

// FieldState is a field's effective presentation state once its conditional
// logic has been applied.
type FieldState struct {
	Visible  bool
	Required bool
	Disabled bool
}

// Evaluate resolves the state of one field. Fields without enabled logic
// keep their static configuration. Values are keyed by field id.
func Evaluate(field *model.FormField, values map[string]any) FieldState {
	state := FieldState{
		Visible:  true,
		Disabled: field.Disabled,
	}
	if field.Validation != nil {
		state.Required = field.Validation.Required
	}

	logic := field.ConditionalLogic
	if logic == nil || !logic.Enabled || len(logic.Rules) == 0 {
		return state
	}

	matched := combine(logic, values)
	switch logic.Action {
	case model.ActionShow:
		state.Visible = matched
	case model.ActionHide:
		state.Visible = !matched
	case model.ActionRequire:
		state.Required = state.Required || matched
	case model.ActionDisable:
		state.Disabled = state.Disabled || matched
	default:
		// unknown actions leave the static state alone
	}
	return state
}

// States evaluates every field of a configuration, keyed by field id.
func States(cfg *model.FormConfig, values map[string]any) map[string]FieldState {
	out := make(map[string]FieldState)
	for i := range cfg.Steps {
		for j := range cfg.Steps[i].Fields {
			f := &cfg.Steps[i].Fields[j]
			out[f.ID] = Evaluate(f, values)
		}
	}
	return out
}

func combine(logic *model.ConditionalLogic, values map[string]any) bool {
	if logic.Operator == model.LogicOr {
		for _, r := range logic.Rules {
			if EvaluateRule(r, values[r.TargetFieldID]) {
				return true
			}
		}
		return false
	}
	// AND is the default combination
	for _, r := range logic.Rules {
		if !EvaluateRule(r, values[r.TargetFieldID]) {
			return false
		}
	}
	return true
}

// EvaluateRule applies one comparison to the target field's current value.
// Unrecognized operators deliberately match: a stale rule must never strand
// a field invisible.
func EvaluateRule(rule model.ConditionalRule, value any) bool {
	switch rule.Operator {
	case model.OpEquals:
		return valueEqual(value, rule.Value)
	case model.OpNotEquals:
		return !valueEqual(value, rule.Value)
	case model.OpContains:
		return contains(value, rule.Value)
	case model.OpNotContains:
		return !contains(value, rule.Value)
	case model.OpEmpty:
		return isEmpty(value)
	case model.OpNotEmpty:
		return !isEmpty(value)
	case model.OpGreaterThan:
		a, b, ok := numericPair(value, rule.Value)
		return ok && a > b
	case model.OpLessThan:
		a, b, ok := numericPair(value, rule.Value)
		return ok && a < b
	default:
		return true
	}
}

// isEmpty treats nil, the empty string, false, zero, and empty collections
// as empty. Whitespace is a value: "  " is not empty.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return x == ""
	case bool:
		return !x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	}
	return false
}

// valueEqual is strict equality with numeric normalization: 2 == 2.0
// because ints become float64 on a JSON round trip, but a string never
// equals a number and a bool only equals a bool.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := numericValue(a)
	bf, bok := numericValue(b)
	if aok || bok {
		return aok && bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// numericValue normalizes Go numeric types to float64. Unlike toFloat it
// does not coerce strings or bools.
func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// contains checks substring membership for strings and element membership
// for slices.
func contains(haystack, needle any) bool {
	if haystack == nil {
		return false
	}
	rv := reflect.ValueOf(haystack)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if valueEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(fmt.Sprintf("%v", haystack), fmt.Sprintf("%v", needle))
}

// numericPair coerces both sides to float64. Values that do not parse fail
// both ordered comparisons.
func numericPair(a, b any) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok || math.IsNaN(af) || math.IsNaN(bf) {
		return 0, 0, false
	}
	return af, bf, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
