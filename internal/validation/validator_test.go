package validation

import (
	"strings"
	"testing"

	"github.com/formweave/formweave/model"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func textField(id string, rules *model.ValidationRules) model.FormField {
	return model.FormField{ID: id, Name: id, Type: model.FieldText, Label: id, Validation: rules}
}

func TestField_Required(t *testing.T) {
	f := textField("name", &model.ValidationRules{Required: true})
	for _, empty := range []any{nil, "", "   "} {
		if errs := Field(&f, empty); len(errs) != 1 || !strings.Contains(errs[0], "required") {
			t.Errorf("Field(%#v) = %v, want one required error", empty, errs)
		}
	}
	if errs := Field(&f, "filled"); len(errs) != 0 {
		t.Errorf("filled required field: %v", errs)
	}
}

func TestField_OptionalEmptySkipsRules(t *testing.T) {
	f := textField("nick", &model.ValidationRules{MinLength: intPtr(5)})
	if errs := Field(&f, ""); len(errs) != 0 {
		t.Errorf("empty optional field should pass, got %v", errs)
	}
	if errs := Field(&f, "ab"); len(errs) != 1 {
		t.Errorf("short value should fail minLength, got %v", errs)
	}
}

func TestField_Lengths(t *testing.T) {
	f := textField("bio", &model.ValidationRules{MinLength: intPtr(3), MaxLength: intPtr(5)})
	if errs := Field(&f, "ab"); len(errs) != 1 {
		t.Errorf("below min: %v", errs)
	}
	if errs := Field(&f, "abcdef"); len(errs) != 1 {
		t.Errorf("above max: %v", errs)
	}
	if errs := Field(&f, "abcd"); len(errs) != 0 {
		t.Errorf("in range: %v", errs)
	}
}

func TestField_Email(t *testing.T) {
	f := model.FormField{ID: "e", Name: "e", Type: model.FieldEmail, Label: "Email"}
	tests := []struct {
		value string
		ok    bool
	}{
		{"user@example.com", true},
		{"a@b.co", true},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"user@nodot", false},
		{"spaces in@example.com", false},
	}
	for _, tt := range tests {
		errs := Field(&f, tt.value)
		if tt.ok && len(errs) != 0 {
			t.Errorf("%q should pass, got %v", tt.value, errs)
		}
		if !tt.ok && len(errs) == 0 {
			t.Errorf("%q should fail", tt.value)
		}
	}
}

func TestField_Pattern(t *testing.T) {
	f := textField("zip", &model.ValidationRules{Pattern: `^\d{5}$`})
	if errs := Field(&f, "75001"); len(errs) != 0 {
		t.Errorf("matching value: %v", errs)
	}
	if errs := Field(&f, "7500"); len(errs) != 1 {
		t.Errorf("non-matching value: %v", errs)
	}
	// an uncompilable pattern is ignored rather than failing every value
	bad := textField("x", &model.ValidationRules{Pattern: `[`})
	if errs := Field(&bad, "anything"); len(errs) != 0 {
		t.Errorf("broken pattern should be ignored: %v", errs)
	}
}

func TestField_NumericBounds(t *testing.T) {
	f := model.FormField{ID: "age", Name: "age", Type: model.FieldNumber, Label: "Age",
		Validation: &model.ValidationRules{Min: floatPtr(18), Max: floatPtr(99)}}
	if errs := Field(&f, 17); len(errs) != 1 {
		t.Errorf("below min: %v", errs)
	}
	if errs := Field(&f, 100.5); len(errs) != 1 {
		t.Errorf("above max: %v", errs)
	}
	if errs := Field(&f, "42"); len(errs) != 0 {
		t.Errorf("numeric string in range: %v", errs)
	}
	// bounds do not apply to values that are not numbers
	if errs := Field(&f, "abc"); len(errs) != 0 {
		t.Errorf("non-numeric value should skip bounds: %v", errs)
	}
	if errs := Field(&f, []any{"a"}); len(errs) != 0 {
		t.Errorf("list value should skip bounds: %v", errs)
	}
}

func TestField_LengthsApplyToStringsOnly(t *testing.T) {
	f := textField("bio", &model.ValidationRules{MinLength: intPtr(3), MaxLength: intPtr(5)})
	if errs := Field(&f, 42); len(errs) != 0 {
		t.Errorf("number should skip length rules: %v", errs)
	}
	if errs := Field(&f, []any{"a", "b"}); len(errs) != 0 {
		t.Errorf("list should skip length rules: %v", errs)
	}
}

func multiStepConfig() *model.FormConfig {
	return &model.FormConfig{
		ID: "form_1",
		Steps: []model.FormStep{
			{ID: "s1", Order: 0, Fields: []model.FormField{
				{ID: "name", Name: "name", Type: model.FieldText, Label: "Name", StepID: "s1", Order: 0,
					Validation: &model.ValidationRules{Required: true}},
				{ID: "email", Name: "email", Type: model.FieldEmail, Label: "Email", StepID: "s1", Order: 1},
			}},
			{ID: "s2", Order: 1, Fields: []model.FormField{
				{ID: "company", Name: "company", Type: model.FieldText, Label: "Company", StepID: "s2", Order: 0,
					Validation: &model.ValidationRules{Required: true},
					ConditionalLogic: &model.ConditionalLogic{
						Enabled: true, Action: model.ActionShow, Operator: model.LogicAnd,
						Rules: []model.ConditionalRule{{TargetFieldID: "pro", Operator: model.OpEquals, Value: true}},
					}},
				{ID: "pro", Name: "pro", Type: model.FieldSwitch, Label: "Professional", StepID: "s2", Order: 1},
			}},
		},
	}
}

func TestForm_SkipsHiddenFields(t *testing.T) {
	cfg := multiStepConfig()

	// company hidden: its required rule must not fire
	report := Form(cfg, map[string]any{"name": "Jo", "pro": false})
	if !report.IsValid() {
		t.Errorf("hidden required field still validated: %v", report.Errors)
	}

	// company visible and empty: required fires
	report = Form(cfg, map[string]any{"name": "Jo", "pro": true})
	if report.IsValid() {
		t.Fatal("visible empty required field should fail")
	}
	if len(report.Errors["company"]) != 1 {
		t.Errorf("company errors = %v", report.Errors["company"])
	}
}

func TestForm_RequireActionPromotes(t *testing.T) {
	cfg := &model.FormConfig{Steps: []model.FormStep{{ID: "s1", Fields: []model.FormField{
		{ID: "vat", Name: "vat", Type: model.FieldText, Label: "VAT", StepID: "s1",
			ConditionalLogic: &model.ConditionalLogic{
				Enabled: true, Action: model.ActionRequire, Operator: model.LogicAnd,
				Rules: []model.ConditionalRule{{TargetFieldID: "pro", Operator: model.OpEquals, Value: true}},
			}},
		{ID: "pro", Name: "pro", Type: model.FieldSwitch, Label: "Pro", StepID: "s1"},
	}}}}

	if report := Form(cfg, map[string]any{"pro": false}); !report.IsValid() {
		t.Errorf("unpromoted optional field failed: %v", report.Errors)
	}
	if report := Form(cfg, map[string]any{"pro": true}); report.IsValid() {
		t.Error("promoted field with no value should fail")
	}
}

func TestStep_ValidatesOnlyThatStep(t *testing.T) {
	cfg := multiStepConfig()
	report := Step(cfg, "s1", map[string]any{"pro": true})
	if len(report.Errors) != 1 || len(report.Errors["name"]) != 1 {
		t.Errorf("step report = %v, want only name", report.Errors)
	}
}

func TestCompletion(t *testing.T) {
	cfg := multiStepConfig()

	if got := Completion(cfg, map[string]any{"pro": false}); got != 0 {
		t.Errorf("no required values filled = %d%%, want 0", got)
	}
	if got := Completion(cfg, map[string]any{"name": "Jo", "pro": false}); got != 100 {
		t.Errorf("all visible required filled = %d%%, want 100", got)
	}
	if got := Completion(cfg, map[string]any{"name": "Jo", "pro": true}); got != 50 {
		t.Errorf("half filled = %d%%, want 50", got)
	}

	none := &model.FormConfig{Steps: []model.FormStep{{ID: "s1", Fields: []model.FormField{
		{ID: "a", Name: "a", Type: model.FieldText, Label: "A", StepID: "s1"},
	}}}}
	if got := Completion(none, nil); got != 100 {
		t.Errorf("no required fields = %d%%, want 100", got)
	}
}

func TestStepCompletion(t *testing.T) {
	cfg := multiStepConfig()
	if got := StepCompletion(cfg, "s1", nil); got != 0 {
		t.Errorf("empty step one = %d%%, want 0", got)
	}
	if got := StepCompletion(cfg, "s1", map[string]any{"name": "Jo"}); got != 100 {
		t.Errorf("complete step one = %d%%, want 100", got)
	}
}

func TestReport_Details(t *testing.T) {
	cfg := multiStepConfig()
	report := Form(cfg, map[string]any{"pro": true})
	details := report.Details(cfg)
	if len(details) != 2 {
		t.Fatalf("details = %d, want 2 (name, company)", len(details))
	}
	if details[0].Field != "name" || details[1].Field != "company" {
		t.Errorf("details order = %s, %s", details[0].Field, details[1].Field)
	}
}

func TestCheckConfig(t *testing.T) {
	valid := multiStepConfig()
	if errs := CheckConfig(valid); len(errs) != 0 {
		t.Fatalf("valid config flagged: %v", errs)
	}

	find := func(errs []model.FieldError, code string) bool {
		for _, e := range errs {
			if e.Code == code {
				return true
			}
		}
		return false
	}

	noSteps := &model.FormConfig{}
	if errs := CheckConfig(noSteps); !find(errs, "min_steps") {
		t.Errorf("empty form: %v", errs)
	}

	tooMany := &model.FormConfig{}
	for i := 0; i <= model.MaxSteps; i++ {
		tooMany.Steps = append(tooMany.Steps, model.FormStep{ID: string(rune('a' + i)), Order: i})
	}
	if errs := CheckConfig(tooMany); !find(errs, "max_steps") {
		t.Errorf("oversized form: %v", errs)
	}

	dup := multiStepConfig()
	dup.Steps[1].Fields[0].ID = "name"
	if errs := CheckConfig(dup); !find(errs, "duplicate_id") {
		t.Errorf("duplicate field id: %v", errs)
	}

	gap := multiStepConfig()
	gap.Steps[0].Fields[1].Order = 5
	if errs := CheckConfig(gap); !find(errs, "bad_order") {
		t.Errorf("non-contiguous field order: %v", errs)
	}

	dangling := multiStepConfig()
	dangling.Steps[1].Fields[0].ConditionalLogic.Rules[0].TargetFieldID = "ghost"
	if errs := CheckConfig(dangling); !find(errs, "dangling_reference") {
		t.Errorf("dangling conditional target: %v", errs)
	}

	verify := multiStepConfig()
	verify.Steps[0].Verification = &model.StepVerification{Enabled: true, Method: "POST"}
	if errs := CheckConfig(verify); !find(errs, "missing_endpoint") {
		t.Errorf("verification without endpoint: %v", errs)
	}
}
