// Package model contains the form configuration tree shared by every layer:
// forms, steps, fields, validation rules, conditional logic, and step
// verification settings, plus the persisted record shapes and error envelope.
package model

import "fmt"

// MaxSteps is the hard ceiling on the number of steps in a form.
const MaxSteps = 10

// FormLayout controls the overall orientation of a rendered form.
type FormLayout string

const (
	LayoutVertical   FormLayout = "VERTICAL"
	LayoutHorizontal FormLayout = "HORIZONTAL"
)

// FormSpacing controls the vertical rhythm between fields.
type FormSpacing string

const (
	SpacingCompact FormSpacing = "COMPACT"
	SpacingNormal  FormSpacing = "NORMAL"
	SpacingRelaxed FormSpacing = "RELAXED"
)

// FieldWidth is the fraction of a row a field occupies.
type FieldWidth string

const (
	WidthFull    FieldWidth = "full"
	WidthHalf    FieldWidth = "half"
	WidthThird   FieldWidth = "third"
	WidthQuarter FieldWidth = "quarter"
)

// Fraction returns the numeric share of a row for the width. Unknown widths
// fall back to a full row.
func (w FieldWidth) Fraction() float64 {
	switch w {
	case WidthQuarter:
		return 0.25
	case WidthThird:
		return 0.33
	case WidthHalf:
		return 0.5
	default:
		return 1.0
	}
}

// FieldType enumerates every input kind a field can be.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldEmail       FieldType = "email"
	FieldPassword    FieldType = "password"
	FieldNumber      FieldType = "number"
	FieldTel         FieldType = "tel"
	FieldURL         FieldType = "url"
	FieldTextarea    FieldType = "textarea"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldRadio       FieldType = "radio"
	FieldCheckbox    FieldType = "checkbox"
	FieldDate        FieldType = "date"
	FieldDatetime    FieldType = "datetime-local"
	FieldFile        FieldType = "file"
	FieldSwitch      FieldType = "switch"
	FieldRange       FieldType = "range"
)

// FieldTypes lists all valid field types in catalog order.
var FieldTypes = []FieldType{
	FieldText, FieldEmail, FieldPassword, FieldNumber, FieldTel, FieldURL,
	FieldTextarea, FieldSelect, FieldMultiselect, FieldRadio, FieldCheckbox,
	FieldDate, FieldDatetime, FieldFile, FieldSwitch, FieldRange,
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// HasOptions reports whether the type carries a static option list.
func (t FieldType) HasOptions() bool {
	switch t {
	case FieldSelect, FieldMultiselect, FieldRadio, FieldCheckbox:
		return true
	}
	return false
}

// Numeric reports whether the type accepts min/max/step attributes.
func (t FieldType) Numeric() bool {
	return t == FieldNumber || t == FieldRange
}

// ValidationRules are the per-field constraints checked by the validation
// engine. Absent rules mean no constraint.
type ValidationRules struct {
	Required  bool     `json:"required,omitempty"  yaml:"required,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"       yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"       yaml:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"   yaml:"pattern,omitempty"`
	Email     bool     `json:"email,omitempty"     yaml:"email,omitempty"`
}

// ConditionOperator compares a target field's current value to a rule value.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpEmpty       ConditionOperator = "empty"
	OpNotEmpty    ConditionOperator = "not_empty"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
)

// ConditionAction is what a matched rule set does to the owning field.
type ConditionAction string

const (
	ActionShow    ConditionAction = "show"
	ActionHide    ConditionAction = "hide"
	ActionRequire ConditionAction = "require"
	ActionDisable ConditionAction = "disable"
)

// LogicalOperator combines multiple rule results.
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "AND"
	LogicOr  LogicalOperator = "OR"
)

// ConditionalRule is one comparison against another field's value.
type ConditionalRule struct {
	TargetFieldID string            `json:"targetFieldId"`
	Operator      ConditionOperator `json:"operator"`
	Value         any               `json:"value,omitempty"`
}

// ConditionalLogic controls a field's visibility, requiredness, or
// enablement based on the values of other fields.
type ConditionalLogic struct {
	Enabled  bool              `json:"enabled"`
	Action   ConditionAction   `json:"action"`
	Operator LogicalOperator   `json:"logicalOperator"`
	Rules    []ConditionalRule `json:"rules"`
}

// FieldOption is one entry of a selection field.
type FieldOption struct {
	Label    string `json:"label"`
	Value    any    `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// FieldAttributes carries type-specific input attributes. Which attributes
// are allowed depends on the field type; FormField.Validate enforces that.
type FieldAttributes struct {
	Min      *float64 `json:"min,omitempty"`      // number, range
	Max      *float64 `json:"max,omitempty"`      // number, range
	Step     *float64 `json:"step,omitempty"`     // number, range
	Accept   string   `json:"accept,omitempty"`   // file
	Multiple bool     `json:"multiple,omitempty"` // file, select
	Rows     *int     `json:"rows,omitempty"`     // textarea
}

// OptionSource configures API-backed option loading for a selection field.
type OptionSource struct {
	Method       string            `json:"method"`
	Endpoint     string            `json:"endpoint"`
	ResponsePath string            `json:"responsePath,omitempty"`
	LabelKey     string            `json:"labelKey,omitempty"`
	ValueKey     string            `json:"valueKey,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Params       map[string]any    `json:"params,omitempty"`
}

// FieldMapping binds a form field to an outgoing verification parameter.
type FieldMapping struct {
	FieldID       string `json:"fieldId"`
	ParameterName string `json:"parameterName"`
	FieldLabel    string `json:"fieldLabel,omitempty"`
}

// StepVerification configures the external HTTP check gating progression
// past a step.
type StepVerification struct {
	Enabled            bool              `json:"enabled"`
	Endpoint           string            `json:"endpoint"`
	Method             string            `json:"method"`
	Headers            map[string]string `json:"headers,omitempty"`
	StaticParams       map[string]any    `json:"staticParams,omitempty"`
	FieldMappings      []FieldMapping    `json:"fieldMappings,omitempty"`
	ValidationRequired bool              `json:"validationRequired,omitempty"`
	SuccessMessage     string            `json:"successMessage,omitempty"`
	ErrorMessage       string            `json:"errorMessage,omitempty"`
}

// FormField is one input element of a step. Name is the data-binding key
// used in submitted value maps; ID is the structural identity.
type FormField struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             FieldType         `json:"type"`
	Label            string            `json:"label"`
	Placeholder      string            `json:"placeholder,omitempty"`
	HelpText         string            `json:"helpText,omitempty"`
	DefaultValue     any               `json:"defaultValue,omitempty"`
	Validation       *ValidationRules  `json:"validation,omitempty"`
	Options          []FieldOption     `json:"options,omitempty"`
	Width            FieldWidth        `json:"width,omitempty"`
	Order            int               `json:"order"`
	StepID           string            `json:"stepId"`
	Disabled         bool              `json:"disabled,omitempty"`
	ReadOnly         bool              `json:"readonly,omitempty"`
	ConditionalLogic *ConditionalLogic `json:"conditionalLogic,omitempty"`
	Attributes       *FieldAttributes  `json:"attributes,omitempty"`
	OptionSource     *OptionSource     `json:"optionSource,omitempty"`
}

// Validate checks that the field only carries attributes meaningful to its
// type. Constructed fields are checked once here instead of every consumer
// re-checking a loosely typed bag.
func (f *FormField) Validate() error {
	if !f.Type.Valid() {
		return fmt.Errorf("field %q: unknown type %q", f.ID, f.Type)
	}
	if f.Label == "" {
		return fmt.Errorf("field %q: label is required", f.ID)
	}
	if len(f.Options) > 0 && !f.Type.HasOptions() {
		return fmt.Errorf("field %q: type %q does not take options", f.ID, f.Type)
	}
	if f.OptionSource != nil && !f.Type.HasOptions() {
		return fmt.Errorf("field %q: type %q does not take an option source", f.ID, f.Type)
	}
	if a := f.Attributes; a != nil {
		if (a.Min != nil || a.Max != nil || a.Step != nil) && !f.Type.Numeric() {
			return fmt.Errorf("field %q: numeric attributes require a number or range type", f.ID)
		}
		if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
			return fmt.Errorf("field %q: min %v exceeds max %v", f.ID, *a.Min, *a.Max)
		}
		if a.Rows != nil && f.Type != FieldTextarea {
			return fmt.Errorf("field %q: rows only applies to textarea", f.ID)
		}
		if a.Accept != "" && f.Type != FieldFile {
			return fmt.Errorf("field %q: accept only applies to file", f.ID)
		}
		if a.Multiple && f.Type != FieldFile && f.Type != FieldSelect && f.Type != FieldMultiselect {
			return fmt.Errorf("field %q: multiple only applies to file and select types", f.ID)
		}
	}
	return nil
}

// FormStep is an ordered page of fields with an optional verification gate.
type FormStep struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Order        int               `json:"order"`
	Fields       []FormField       `json:"fields"`
	Verification *StepVerification `json:"verification,omitempty"`
}

// FindField returns a pointer into the step's field slice, or nil.
func (s *FormStep) FindField(fieldID string) *FormField {
	for i := range s.Fields {
		if s.Fields[i].ID == fieldID {
			return &s.Fields[i]
		}
	}
	return nil
}

// FormConfig is the root of the in-memory form tree. Steps are ordered,
// contiguous from zero, and there is always at least one.
type FormConfig struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Layout      FormLayout  `json:"layout"`
	Spacing     FormSpacing `json:"spacing"`
	Steps       []FormStep  `json:"steps"`
}

// FindStep returns a pointer into the step slice, or nil.
func (c *FormConfig) FindStep(stepID string) *FormStep {
	for i := range c.Steps {
		if c.Steps[i].ID == stepID {
			return &c.Steps[i]
		}
	}
	return nil
}

// FindField searches every step for the field with the given ID.
func (c *FormConfig) FindField(fieldID string) *FormField {
	for i := range c.Steps {
		if f := c.Steps[i].FindField(fieldID); f != nil {
			return f
		}
	}
	return nil
}

// AllFields returns every field across all steps, in step then field order.
func (c *FormConfig) AllFields() []FormField {
	var fields []FormField
	for i := range c.Steps {
		fields = append(fields, c.Steps[i].Fields...)
	}
	return fields
}

// ValuesByName rekeys a field-id→value map to field-name→value using the
// form's fields. Unknown ids are dropped.
func (c *FormConfig) ValuesByName(byID map[string]any) map[string]any {
	byName := make(map[string]any, len(byID))
	for i := range c.Steps {
		for j := range c.Steps[i].Fields {
			f := &c.Steps[i].Fields[j]
			if v, ok := byID[f.ID]; ok {
				byName[f.Name] = v
			}
		}
	}
	return byName
}

// Clone returns a deep copy of the configuration. Identifiers are preserved;
// callers wanting fresh ids reassign them afterwards.
func (c *FormConfig) Clone() FormConfig {
	out := *c
	out.Steps = make([]FormStep, len(c.Steps))
	for i, step := range c.Steps {
		cs := step
		cs.Fields = make([]FormField, len(step.Fields))
		for j, field := range step.Fields {
			cf := field
			if field.Validation != nil {
				v := *field.Validation
				cf.Validation = &v
			}
			if field.Attributes != nil {
				a := *field.Attributes
				cf.Attributes = &a
			}
			if field.ConditionalLogic != nil {
				cl := *field.ConditionalLogic
				cl.Rules = append([]ConditionalRule(nil), field.ConditionalLogic.Rules...)
				cf.ConditionalLogic = &cl
			}
			if field.OptionSource != nil {
				os := *field.OptionSource
				os.Headers = cloneStringMap(field.OptionSource.Headers)
				os.Params = cloneAnyMap(field.OptionSource.Params)
				cf.OptionSource = &os
			}
			cf.Options = append([]FieldOption(nil), field.Options...)
			cs.Fields[j] = cf
		}
		if step.Verification != nil {
			v := *step.Verification
			v.Headers = cloneStringMap(step.Verification.Headers)
			v.StaticParams = cloneAnyMap(step.Verification.StaticParams)
			v.FieldMappings = append([]FieldMapping(nil), step.Verification.FieldMappings...)
			cs.Verification = &v
		}
		out.Steps[i] = cs
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
