// Package identifier produces unique, time-sortable identifiers for forms,
// steps, and fields. Identifiers are UUIDv7 values with a type prefix so
// that raw ids remain self-describing in logs and stored JSON.
package identifier

import "github.com/google/uuid"

const (
	formPrefix       = "form_"
	stepPrefix       = "step_"
	fieldPrefix      = "field_"
	submissionPrefix = "sub_"
)

// Generator allocates identifiers. An interface so tests can substitute a
// deterministic sequence.
type Generator interface {
	FormID() string
	StepID() string
	FieldID() string
	SubmissionID() string
}

// UUIDGenerator is the production Generator, backed by UUIDv7 so that ids
// sort by creation time.
type UUIDGenerator struct{}

// New returns the production generator.
func New() UUIDGenerator { return UUIDGenerator{} }

// FormID returns a new form identifier.
func (UUIDGenerator) FormID() string { return formPrefix + newUUID() }

// StepID returns a new step identifier.
func (UUIDGenerator) StepID() string { return stepPrefix + newUUID() }

// FieldID returns a new field identifier.
func (UUIDGenerator) FieldID() string { return fieldPrefix + newUUID() }

// SubmissionID returns a new submission identifier.
func (UUIDGenerator) SubmissionID() string { return submissionPrefix + newUUID() }

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than propagating an error nobody can act on.
		id = uuid.New()
	}
	return id.String()
}
