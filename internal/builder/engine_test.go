package builder

import (
	"fmt"
	"testing"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/model"
)

// seqGen hands out predictable ids so tests can assert on structure.
type seqGen struct{ form, step, field, sub int }

func (g *seqGen) FormID() string       { g.form++; return fmt.Sprintf("form_%d", g.form) }
func (g *seqGen) StepID() string       { g.step++; return fmt.Sprintf("step_%d", g.step) }
func (g *seqGen) FieldID() string      { g.field++; return fmt.Sprintf("field_%d", g.field) }
func (g *seqGen) SubmissionID() string { g.sub++; return fmt.Sprintf("sub_%d", g.sub) }

var _ identifier.Generator = (*seqGen)(nil)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &model.FormConfig{ID: "form_0", Title: "Test form"}
	return New(cfg, &seqGen{})
}

func assertStepOrders(t *testing.T, cfg *model.FormConfig) {
	t.Helper()
	for i, s := range cfg.Steps {
		if s.Order != i {
			t.Errorf("step %d (%s) has order %d", i, s.ID, s.Order)
		}
	}
}

func assertFieldOrders(t *testing.T, step *model.FormStep) {
	t.Helper()
	for i, f := range step.Fields {
		if f.Order != i {
			t.Errorf("field %d (%s) has order %d", i, f.ID, f.Order)
		}
		if f.StepID != step.ID {
			t.Errorf("field %s bound to step %q, want %q", f.ID, f.StepID, step.ID)
		}
	}
}

func TestNew_SeedsInitialStep(t *testing.T) {
	e := newEngine(t)
	if len(e.Form().Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(e.Form().Steps))
	}
	if e.Form().Steps[0].Order != 0 {
		t.Errorf("initial step order = %d", e.Form().Steps[0].Order)
	}
}

func TestAddStep_RespectsCeiling(t *testing.T) {
	e := newEngine(t)
	for len(e.Form().Steps) < model.MaxSteps {
		if _, st := e.AddStep("", ""); st != StatusOK {
			t.Fatalf("AddStep at %d steps: %v", len(e.Form().Steps), st)
		}
	}
	before := len(e.Form().Steps)
	if _, st := e.AddStep("one too many", ""); st != StatusLimitExceeded {
		t.Errorf("AddStep past ceiling = %v, want limit_exceeded", st)
	}
	if len(e.Form().Steps) != before {
		t.Errorf("failed AddStep mutated the tree: %d steps", len(e.Form().Steps))
	}
	assertStepOrders(t, e.Form())
}

func TestAddStep_ActivatesNewStep(t *testing.T) {
	e := newEngine(t)
	id, st := e.AddStep("Details", "more info")
	if st != StatusOK {
		t.Fatalf("AddStep: %v", st)
	}
	if e.ActiveStep().ID != id {
		t.Errorf("active step = %s, want %s", e.ActiveStep().ID, id)
	}
	if e.ActiveStep().Description != "more info" {
		t.Errorf("description = %q", e.ActiveStep().Description)
	}
}

func TestDeleteStep_KeepsAtLeastOne(t *testing.T) {
	e := newEngine(t)
	only := e.Form().Steps[0].ID
	if st := e.DeleteStep(only); st != StatusLimitExceeded {
		t.Errorf("deleting last step = %v, want limit_exceeded", st)
	}
	if len(e.Form().Steps) != 1 {
		t.Fatalf("last step was removed")
	}
}

func TestDeleteStep_ReindexesAndClampsActive(t *testing.T) {
	e := newEngine(t)
	e.AddStep("B", "")
	cID, _ := e.AddStep("C", "")
	if e.ActiveStepIndex() != 2 {
		t.Fatalf("active = %d", e.ActiveStepIndex())
	}
	if st := e.DeleteStep(cID); st != StatusOK {
		t.Fatalf("DeleteStep: %v", st)
	}
	assertStepOrders(t, e.Form())
	if e.ActiveStepIndex() != 1 {
		t.Errorf("active after delete = %d, want 1", e.ActiveStepIndex())
	}
	if st := e.DeleteStep("step_missing"); st != StatusNotFound {
		t.Errorf("DeleteStep(unknown) = %v, want not_found", st)
	}
}

func TestAddField_AppliesTemplateDefaults(t *testing.T) {
	e := newEngine(t)
	id, st := e.AddField(model.FormField{Type: model.FieldSelect}, nil)
	if st != StatusOK {
		t.Fatalf("AddField: %v", st)
	}
	f := e.Form().FindField(id)
	if f == nil {
		t.Fatal("field not reachable after AddField")
	}
	if f.Width != model.WidthFull {
		t.Errorf("width = %q, want full", f.Width)
	}
	if len(f.Options) == 0 {
		t.Error("select field has no default options")
	}
	if f.Name == "" || f.Label == "" {
		t.Errorf("defaults missing: name=%q label=%q", f.Name, f.Label)
	}
	if e.SelectedField() != id {
		t.Errorf("selection = %q, want %q", e.SelectedField(), id)
	}
}

func TestAddField_InsertAtPosition(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	b, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "B"}, nil)
	pos := 1
	c, st := e.AddField(model.FormField{Type: model.FieldText, Label: "C"}, &pos)
	if st != StatusOK {
		t.Fatalf("AddField at position: %v", st)
	}
	step := e.ActiveStep()
	want := []string{a, c, b}
	for i, id := range want {
		if step.Fields[i].ID != id {
			t.Errorf("slot %d = %s, want %s", i, step.Fields[i].ID, id)
		}
	}
	assertFieldOrders(t, step)
}

func TestAddField_RejectsInvalidAttributes(t *testing.T) {
	e := newEngine(t)
	rows := 4
	_, st := e.AddField(model.FormField{
		Type:       model.FieldText,
		Label:      "bad",
		Attributes: &model.FieldAttributes{Rows: &rows},
	}, nil)
	if st != StatusInvalid {
		t.Fatalf("rows on a text field = %v, want invalid", st)
	}
	if len(e.ActiveStep().Fields) != 0 {
		t.Error("invalid field was still added")
	}
}

func TestUpdateField(t *testing.T) {
	e := newEngine(t)
	id, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "Name"}, nil)

	label := "Full name"
	req := model.ValidationRules{Required: true}
	if st := e.UpdateField(id, FieldUpdate{Label: &label, Validation: &req}); st != StatusOK {
		t.Fatalf("UpdateField: %v", st)
	}
	f := e.Form().FindField(id)
	if f.Label != "Full name" || f.Validation == nil || !f.Validation.Required {
		t.Errorf("update not applied: %+v", f)
	}

	if st := e.UpdateField("field_missing", FieldUpdate{Label: &label}); st != StatusNotFound {
		t.Errorf("UpdateField(unknown) = %v, want not_found", st)
	}

	// invalid update rolls back whole change
	rows := 3
	if st := e.UpdateField(id, FieldUpdate{Attributes: &model.FieldAttributes{Rows: &rows}}); st != StatusInvalid {
		t.Errorf("invalid update = %v, want invalid", st)
	}
	if e.Form().FindField(id).Attributes != nil {
		t.Error("invalid update partially applied")
	}
}

func TestUpdateField_OrderChangeResorts(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	b, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "B"}, nil)
	c, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "C"}, nil)

	last := 2
	if st := e.UpdateField(a, FieldUpdate{Order: &last}); st != StatusOK {
		t.Fatalf("UpdateField order: %v", st)
	}
	step := e.ActiveStep()
	want := []string{b, c, a}
	for i, id := range want {
		if step.Fields[i].ID != id {
			t.Errorf("slot %d = %s, want %s", i, step.Fields[i].ID, id)
		}
	}
	assertFieldOrders(t, step)
}

func TestDeleteField(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	b, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "B"}, nil)

	if st := e.DeleteField(a); st != StatusOK {
		t.Fatalf("DeleteField: %v", st)
	}
	step := e.ActiveStep()
	if len(step.Fields) != 1 || step.Fields[0].ID != b {
		t.Fatalf("unexpected fields after delete: %+v", step.Fields)
	}
	assertFieldOrders(t, step)
	if st := e.DeleteField(a); st != StatusNotFound {
		t.Errorf("double delete = %v, want not_found", st)
	}
}

func TestDeleteField_ClearsSelection(t *testing.T) {
	e := newEngine(t)
	id, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	if e.SelectedField() != id {
		t.Fatalf("selection = %q", e.SelectedField())
	}
	e.DeleteField(id)
	if e.SelectedField() != "" {
		t.Errorf("selection survived delete: %q", e.SelectedField())
	}
}

func TestDuplicateField(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "Name", Name: "name"}, nil)
	b, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "Other", Name: "other"}, nil)

	dup, st := e.DuplicateField(a)
	if st != StatusOK {
		t.Fatalf("DuplicateField: %v", st)
	}
	step := e.ActiveStep()
	// source stays first, copy lands right after, the rest shifts
	want := []string{a, dup, b}
	for i, id := range want {
		if step.Fields[i].ID != id {
			t.Errorf("slot %d = %s, want %s", i, step.Fields[i].ID, id)
		}
	}
	assertFieldOrders(t, step)

	f := e.Form().FindField(dup)
	if f.Label != "Name (copie)" {
		t.Errorf("copy label = %q", f.Label)
	}
	if f.Name != "name_2" {
		t.Errorf("copy name = %q, want name_2", f.Name)
	}
	if e.SelectedField() != dup {
		t.Errorf("selection = %q, want the copy", e.SelectedField())
	}

	second, _ := e.DuplicateField(a)
	if got := e.Form().FindField(second).Name; got != "name_3" {
		t.Errorf("second copy name = %q, want name_3", got)
	}
}

func TestDuplicateStep(t *testing.T) {
	e := newEngine(t)
	srcID := e.Form().Steps[0].ID
	e.UpdateStep(srcID, "Contact", "")
	e.AddField(model.FormField{Type: model.FieldEmail, Label: "Email", Name: "email"}, nil)
	e.AddStep("Last", "")
	e.SelectStep(srcID)

	dup, st := e.DuplicateStep(srcID)
	if st != StatusOK {
		t.Fatalf("DuplicateStep: %v", st)
	}
	if e.Form().Steps[1].ID != dup {
		t.Errorf("copy not inserted after source: %+v", e.Form().Steps)
	}
	copyStep := e.Form().FindStep(dup)
	if copyStep.Title != "Contact (copie)" {
		t.Errorf("copy title = %q", copyStep.Title)
	}
	if len(copyStep.Fields) != 1 {
		t.Fatalf("copy fields = %d", len(copyStep.Fields))
	}
	orig := e.Form().Steps[0].Fields[0]
	if copyStep.Fields[0].ID == orig.ID {
		t.Error("copied field shares the source id")
	}
	if copyStep.Fields[0].StepID != dup {
		t.Errorf("copied field bound to %q", copyStep.Fields[0].StepID)
	}
	assertStepOrders(t, e.Form())
}

func TestReorderFields_Idempotent(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	b, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "B"}, nil)
	c, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "C"}, nil)
	stepID := e.ActiveStep().ID

	order := []string{c, a, b}
	if st := e.ReorderFields(stepID, order); st != StatusOK {
		t.Fatalf("ReorderFields: %v", st)
	}
	snapshot := append([]model.FormField(nil), e.ActiveStep().Fields...)

	if st := e.ReorderFields(stepID, order); st != StatusOK {
		t.Fatalf("second ReorderFields: %v", st)
	}
	for i := range snapshot {
		if e.ActiveStep().Fields[i].ID != snapshot[i].ID ||
			e.ActiveStep().Fields[i].Order != snapshot[i].Order {
			t.Errorf("reorder not idempotent at %d", i)
		}
	}
	assertFieldOrders(t, e.ActiveStep())

	if st := e.ReorderFields(stepID, []string{a, b}); st != StatusInvalid {
		t.Errorf("short permutation = %v, want invalid", st)
	}
	if st := e.ReorderFields(stepID, []string{a, b, "nope"}); st != StatusNotFound {
		t.Errorf("unknown id = %v, want not_found", st)
	}
}

func TestReorderSteps_TracksActive(t *testing.T) {
	e := newEngine(t)
	first := e.Form().Steps[0].ID
	second, _ := e.AddStep("B", "")
	third, _ := e.AddStep("C", "")
	e.SelectStep(second)

	if st := e.ReorderSteps([]string{third, second, first}); st != StatusOK {
		t.Fatalf("ReorderSteps: %v", st)
	}
	assertStepOrders(t, e.Form())
	if e.ActiveStep().ID != second {
		t.Errorf("active step drifted to %s", e.ActiveStep().ID)
	}
}

func TestMoveField(t *testing.T) {
	e := newEngine(t)
	a, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	dst, _ := e.AddStep("B", "")

	if st := e.MoveField(a, dst); st != StatusOK {
		t.Fatalf("MoveField: %v", st)
	}
	if len(e.Form().Steps[0].Fields) != 0 {
		t.Error("field still present on source step")
	}
	moved := e.Form().FindField(a)
	if moved == nil || moved.StepID != dst {
		t.Fatalf("field not rebound: %+v", moved)
	}
	assertFieldOrders(t, e.Form().FindStep(dst))
}

func TestChangeHookFiresOnMutationOnly(t *testing.T) {
	var fired int
	cfg := &model.FormConfig{Steps: []model.FormStep{{ID: "s1", Order: 0}}}
	e := New(cfg, &seqGen{}, WithChangeHook(func() { fired++ }))

	e.AddField(model.FormField{Type: model.FieldText, Label: "A"}, nil)
	if fired != 1 {
		t.Errorf("hook fired %d times after AddField", fired)
	}
	e.DeleteField("field_missing")
	if fired != 1 {
		t.Errorf("hook fired on a failed mutation: %d", fired)
	}
}

func TestCloneForm_RemapsReferences(t *testing.T) {
	e := newEngine(t)
	trigger, _ := e.AddField(model.FormField{Type: model.FieldSwitch, Label: "Toggle", Name: "toggle"}, nil)
	dep, _ := e.AddField(model.FormField{Type: model.FieldText, Label: "Dep", Name: "dep"}, nil)
	e.UpdateField(dep, FieldUpdate{ConditionalLogic: &model.ConditionalLogic{
		Enabled:  true,
		Action:   model.ActionShow,
		Operator: model.LogicAnd,
		Rules:    []model.ConditionalRule{{TargetFieldID: trigger, Operator: model.OpEquals, Value: true}},
	}})
	stepID := e.Form().Steps[0].ID
	e.SetStepVerification(stepID, &model.StepVerification{
		Enabled:       true,
		Endpoint:      "https://verify.example/check",
		Method:        "POST",
		FieldMappings: []model.FieldMapping{{FieldID: dep, ParameterName: "dep"}},
	})

	clone := CloneForm(e.Form(), &seqGen{})
	if clone.ID == e.Form().ID {
		t.Error("clone kept the source form id")
	}
	if clone.Title != "Test form (copie)" {
		t.Errorf("clone title = %q", clone.Title)
	}

	cloneTrigger := clone.Steps[0].Fields[0]
	cloneDep := clone.Steps[0].Fields[1]
	if cloneTrigger.ID == trigger || cloneDep.ID == dep {
		t.Fatal("clone kept source field ids")
	}
	rule := cloneDep.ConditionalLogic.Rules[0]
	if rule.TargetFieldID != cloneTrigger.ID {
		t.Errorf("conditional target = %s, want remapped %s", rule.TargetFieldID, cloneTrigger.ID)
	}
	mapping := clone.Steps[0].Verification.FieldMappings[0]
	if mapping.FieldID != cloneDep.ID {
		t.Errorf("verification mapping = %s, want remapped %s", mapping.FieldID, cloneDep.ID)
	}

	// deep copy: mutating the clone leaves the source alone
	clone.Steps[0].Fields[0].Label = "mutated"
	if e.Form().Steps[0].Fields[0].Label == "mutated" {
		t.Error("clone shares field storage with the source")
	}
}
