// Package builder mutates a form configuration tree: steps and fields are
// added, updated, duplicated, reordered, and removed under the structural
// invariants the rest of the system assumes (contiguous zero-based ordering,
// one to ten steps, every field bound to its owning step).
package builder

import (
	"fmt"
	"sort"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/template"
	"github.com/formweave/formweave/model"
)

// Status is the outcome of a mutation. Failed mutations leave the tree
// untouched.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusLimitExceeded
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusLimitExceeded:
		return "limit_exceeded"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Engine wraps one form configuration with editing state: which step is
// active and which field is selected. It is not safe for concurrent use;
// callers serialize access per editing session.
type Engine struct {
	form          *model.FormConfig
	ids           identifier.Generator
	activeStep    int
	selectedField string
	onChange      func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithChangeHook registers a callback invoked after every successful
// mutation. The persistence bridge uses it to mark the form dirty.
func WithChangeHook(fn func()) Option {
	return func(e *Engine) { e.onChange = fn }
}

// New wraps form in an editing engine. A form with no steps gets an initial
// empty step so the one-step minimum holds from the start.
func New(form *model.FormConfig, ids identifier.Generator, opts ...Option) *Engine {
	e := &Engine{form: form, ids: ids}
	for _, opt := range opts {
		opt(e)
	}
	if len(form.Steps) == 0 {
		form.Steps = append(form.Steps, model.FormStep{
			ID:     ids.StepID(),
			Title:  "Step 1",
			Order:  0,
			Fields: []model.FormField{},
		})
	}
	return e
}

// Form returns the configuration under edit.
func (e *Engine) Form() *model.FormConfig { return e.form }

// ActiveStepIndex returns the index of the step being edited.
func (e *Engine) ActiveStepIndex() int { return e.activeStep }

// ActiveStep returns the step being edited.
func (e *Engine) ActiveStep() *model.FormStep { return &e.form.Steps[e.activeStep] }

// SelectedField returns the id of the selected field, or "".
func (e *Engine) SelectedField() string { return e.selectedField }

// SelectStep makes the step with the given id active.
func (e *Engine) SelectStep(stepID string) Status {
	for i := range e.form.Steps {
		if e.form.Steps[i].ID == stepID {
			e.activeStep = i
			return StatusOK
		}
	}
	return StatusNotFound
}

// SelectField marks a field as selected. An empty id clears the selection.
func (e *Engine) SelectField(fieldID string) Status {
	if fieldID == "" {
		e.selectedField = ""
		return StatusOK
	}
	if e.form.FindField(fieldID) == nil {
		return StatusNotFound
	}
	e.selectedField = fieldID
	return StatusOK
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

// reindexSteps restores contiguous zero-based step ordering.
func (e *Engine) reindexSteps() {
	for i := range e.form.Steps {
		e.form.Steps[i].Order = i
	}
}

// reindexFields restores contiguous zero-based field ordering within a step.
func reindexFields(step *model.FormStep) {
	for i := range step.Fields {
		step.Fields[i].Order = i
	}
}

// AddStep appends an empty step and makes it active. Fails with
// StatusLimitExceeded at the step ceiling.
func (e *Engine) AddStep(title, description string) (string, Status) {
	if len(e.form.Steps) >= model.MaxSteps {
		return "", StatusLimitExceeded
	}
	if title == "" {
		title = fmt.Sprintf("Step %d", len(e.form.Steps)+1)
	}
	step := model.FormStep{
		ID:          e.ids.StepID(),
		Title:       title,
		Description: description,
		Order:       len(e.form.Steps),
		Fields:      []model.FormField{},
	}
	e.form.Steps = append(e.form.Steps, step)
	e.activeStep = len(e.form.Steps) - 1
	e.changed()
	return step.ID, StatusOK
}

// UpdateStep sets a step's title and description.
func (e *Engine) UpdateStep(stepID, title, description string) Status {
	step := e.form.FindStep(stepID)
	if step == nil {
		return StatusNotFound
	}
	step.Title = title
	step.Description = description
	e.changed()
	return StatusOK
}

// SetStepVerification replaces a step's verification settings. A nil config
// removes the gate.
func (e *Engine) SetStepVerification(stepID string, v *model.StepVerification) Status {
	step := e.form.FindStep(stepID)
	if step == nil {
		return StatusNotFound
	}
	step.Verification = v
	e.changed()
	return StatusOK
}

// DeleteStep removes a step and its fields. The last remaining step cannot
// be deleted. Remaining steps are reindexed and the active step clamped.
func (e *Engine) DeleteStep(stepID string) Status {
	if len(e.form.Steps) <= 1 {
		return StatusLimitExceeded
	}
	idx := -1
	for i := range e.form.Steps {
		if e.form.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return StatusNotFound
	}
	if sel := e.form.Steps[idx].FindField(e.selectedField); sel != nil {
		e.selectedField = ""
	}
	e.form.Steps = append(e.form.Steps[:idx], e.form.Steps[idx+1:]...)
	e.reindexSteps()
	if e.activeStep >= len(e.form.Steps) {
		e.activeStep = len(e.form.Steps) - 1
	}
	e.changed()
	return StatusOK
}

// DuplicateStep deep-copies a step, suffixes its title, assigns fresh ids
// throughout, and inserts the copy right after the source.
func (e *Engine) DuplicateStep(stepID string) (string, Status) {
	if len(e.form.Steps) >= model.MaxSteps {
		return "", StatusLimitExceeded
	}
	idx := -1
	for i := range e.form.Steps {
		if e.form.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", StatusNotFound
	}
	src := e.form.Steps[idx]
	cfg := model.FormConfig{Steps: []model.FormStep{src}}
	clone := cfg.Clone().Steps[0]
	clone.ID = e.ids.StepID()
	clone.Title = src.Title + " (copie)"
	for i := range clone.Fields {
		clone.Fields[i].ID = e.ids.FieldID()
		clone.Fields[i].StepID = clone.ID
	}

	e.form.Steps = append(e.form.Steps, model.FormStep{})
	copy(e.form.Steps[idx+2:], e.form.Steps[idx+1:])
	e.form.Steps[idx+1] = clone
	e.reindexSteps()
	e.activeStep = idx + 1
	e.changed()
	return clone.ID, StatusOK
}

// ReorderSteps rearranges steps to match orderedIDs, which must be a
// permutation of the current step ids. Reapplying the same order is a no-op.
func (e *Engine) ReorderSteps(orderedIDs []string) Status {
	if len(orderedIDs) != len(e.form.Steps) {
		return StatusInvalid
	}
	reordered := make([]model.FormStep, 0, len(orderedIDs))
	seen := make(map[string]bool, len(orderedIDs))
	activeID := e.form.Steps[e.activeStep].ID
	for _, id := range orderedIDs {
		if seen[id] {
			return StatusInvalid
		}
		seen[id] = true
		step := e.form.FindStep(id)
		if step == nil {
			return StatusNotFound
		}
		reordered = append(reordered, *step)
	}
	e.form.Steps = reordered
	e.reindexSteps()
	for i := range e.form.Steps {
		if e.form.Steps[i].ID == activeID {
			e.activeStep = i
		}
	}
	e.changed()
	return StatusOK
}

// AddField creates a field of the given type on the active step, applying
// the type's template defaults. A nil position appends; otherwise the field
// is inserted at position and later fields shift down. The new field becomes
// the selection.
func (e *Engine) AddField(data model.FormField, position *int) (string, Status) {
	step := &e.form.Steps[e.activeStep]

	data.ID = e.ids.FieldID()
	data.StepID = step.ID
	if data.Name == "" {
		data.Name = uniqueName(e.form, string(data.Type))
	}
	if data.Label == "" {
		if tpl, ok := template.Lookup(data.Type); ok {
			data.Label = tpl.Label
		}
	}
	if data.Width == "" {
		data.Width = model.WidthFull
	}
	template.Apply(&data)
	if err := data.Validate(); err != nil {
		return "", StatusInvalid
	}

	at := len(step.Fields)
	if position != nil && *position >= 0 && *position < len(step.Fields) {
		at = *position
	}
	step.Fields = append(step.Fields, model.FormField{})
	copy(step.Fields[at+1:], step.Fields[at:])
	step.Fields[at] = data
	reindexFields(step)

	e.selectedField = data.ID
	e.changed()
	return data.ID, StatusOK
}

// FieldUpdate carries the mutable field properties. Nil pointers leave the
// current value alone.
type FieldUpdate struct {
	Label            *string
	Name             *string
	Placeholder      *string
	HelpText         *string
	DefaultValue     *any
	Width            *model.FieldWidth
	Order            *int
	Disabled         *bool
	ReadOnly         *bool
	Validation       *model.ValidationRules
	Options          *[]model.FieldOption
	ConditionalLogic *model.ConditionalLogic
	Attributes       *model.FieldAttributes
	OptionSource     *model.OptionSource
}

// UpdateField applies an update to one field. An order change re-sorts the
// owning step and reindexes. The update is validated against the field's
// type before anything is written.
func (e *Engine) UpdateField(fieldID string, upd FieldUpdate) Status {
	var step *model.FormStep
	var field *model.FormField
	for i := range e.form.Steps {
		if f := e.form.Steps[i].FindField(fieldID); f != nil {
			step, field = &e.form.Steps[i], f
			break
		}
	}
	if field == nil {
		return StatusNotFound
	}

	next := *field
	if upd.Label != nil {
		next.Label = *upd.Label
	}
	if upd.Name != nil {
		next.Name = *upd.Name
	}
	if upd.Placeholder != nil {
		next.Placeholder = *upd.Placeholder
	}
	if upd.HelpText != nil {
		next.HelpText = *upd.HelpText
	}
	if upd.DefaultValue != nil {
		next.DefaultValue = *upd.DefaultValue
	}
	if upd.Width != nil {
		next.Width = *upd.Width
	}
	if upd.Disabled != nil {
		next.Disabled = *upd.Disabled
	}
	if upd.ReadOnly != nil {
		next.ReadOnly = *upd.ReadOnly
	}
	if upd.Validation != nil {
		next.Validation = upd.Validation
	}
	if upd.Options != nil {
		next.Options = *upd.Options
	}
	if upd.ConditionalLogic != nil {
		next.ConditionalLogic = upd.ConditionalLogic
	}
	if upd.Attributes != nil {
		next.Attributes = upd.Attributes
	}
	if upd.OptionSource != nil {
		next.OptionSource = upd.OptionSource
	}
	if upd.Order != nil {
		next.Order = *upd.Order
	}
	if err := next.Validate(); err != nil {
		return StatusInvalid
	}
	*field = next

	if upd.Order != nil {
		sort.SliceStable(step.Fields, func(i, j int) bool {
			return step.Fields[i].Order < step.Fields[j].Order
		})
		reindexFields(step)
	}
	e.changed()
	return StatusOK
}

// DeleteField removes a field, reindexes its step, and clears the selection
// if it pointed at the removed field.
func (e *Engine) DeleteField(fieldID string) Status {
	for i := range e.form.Steps {
		step := &e.form.Steps[i]
		for j := range step.Fields {
			if step.Fields[j].ID == fieldID {
				step.Fields = append(step.Fields[:j], step.Fields[j+1:]...)
				reindexFields(step)
				if e.selectedField == fieldID {
					e.selectedField = ""
				}
				e.changed()
				return StatusOK
			}
		}
	}
	return StatusNotFound
}

// DuplicateField copies a field with a fresh id, a suffixed label, and a
// disambiguated name, inserting the copy right after the source. The copy
// becomes the selection.
func (e *Engine) DuplicateField(fieldID string) (string, Status) {
	for i := range e.form.Steps {
		step := &e.form.Steps[i]
		for j := range step.Fields {
			if step.Fields[j].ID != fieldID {
				continue
			}
			src := step.Fields[j]
			cfg := model.FormConfig{Steps: []model.FormStep{{Fields: []model.FormField{src}}}}
			clone := cfg.Clone().Steps[0].Fields[0]
			clone.ID = e.ids.FieldID()
			clone.Label = src.Label + " (copie)"
			clone.Name = uniqueName(e.form, src.Name)

			step.Fields = append(step.Fields, model.FormField{})
			copy(step.Fields[j+2:], step.Fields[j+1:])
			step.Fields[j+1] = clone
			reindexFields(step)
			e.selectedField = clone.ID
			e.changed()
			return clone.ID, StatusOK
		}
	}
	return "", StatusNotFound
}

// ReorderFields rearranges a step's fields to match orderedIDs, which must
// be a permutation of the step's field ids. Reapplying the same order is a
// no-op.
func (e *Engine) ReorderFields(stepID string, orderedIDs []string) Status {
	step := e.form.FindStep(stepID)
	if step == nil {
		return StatusNotFound
	}
	if len(orderedIDs) != len(step.Fields) {
		return StatusInvalid
	}
	reordered := make([]model.FormField, 0, len(orderedIDs))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return StatusInvalid
		}
		seen[id] = true
		f := step.FindField(id)
		if f == nil {
			return StatusNotFound
		}
		reordered = append(reordered, *f)
	}
	step.Fields = reordered
	reindexFields(step)
	e.changed()
	return StatusOK
}

// MoveField relocates a field to another step, appending it there. Both
// steps are reindexed.
func (e *Engine) MoveField(fieldID, toStepID string) Status {
	dst := e.form.FindStep(toStepID)
	if dst == nil {
		return StatusNotFound
	}
	for i := range e.form.Steps {
		step := &e.form.Steps[i]
		for j := range step.Fields {
			if step.Fields[j].ID != fieldID {
				continue
			}
			if step.ID == toStepID {
				return StatusOK
			}
			moved := step.Fields[j]
			step.Fields = append(step.Fields[:j], step.Fields[j+1:]...)
			reindexFields(step)
			moved.StepID = dst.ID
			dst.Fields = append(dst.Fields, moved)
			reindexFields(dst)
			e.changed()
			return StatusOK
		}
	}
	return StatusNotFound
}

// uniqueName returns base if unused across the form, otherwise base_2,
// base_3, and so on.
func uniqueName(cfg *model.FormConfig, base string) string {
	if base == "" {
		base = "field"
	}
	taken := make(map[string]bool)
	for _, f := range cfg.AllFields() {
		taken[f.Name] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// CloneForm deep-copies a configuration with fresh identifiers throughout.
// Conditional rules and verification mappings that reference copied fields
// are remapped to the new ids. The title gets the duplicate suffix.
func CloneForm(cfg *model.FormConfig, ids identifier.Generator) model.FormConfig {
	out := cfg.Clone()
	out.ID = ids.FormID()
	out.Title = cfg.Title + " (copie)"

	fieldIDs := make(map[string]string)
	for i := range out.Steps {
		step := &out.Steps[i]
		step.ID = ids.StepID()
		for j := range step.Fields {
			old := step.Fields[j].ID
			step.Fields[j].ID = ids.FieldID()
			step.Fields[j].StepID = step.ID
			fieldIDs[old] = step.Fields[j].ID
		}
	}
	for i := range out.Steps {
		step := &out.Steps[i]
		for j := range step.Fields {
			if cl := step.Fields[j].ConditionalLogic; cl != nil {
				for k := range cl.Rules {
					if mapped, ok := fieldIDs[cl.Rules[k].TargetFieldID]; ok {
						cl.Rules[k].TargetFieldID = mapped
					}
				}
			}
		}
		if v := step.Verification; v != nil {
			for k := range v.FieldMappings {
				if mapped, ok := fieldIDs[v.FieldMappings[k].FieldID]; ok {
					v.FieldMappings[k].FieldID = mapped
				}
			}
		}
	}
	return out
}
