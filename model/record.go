package model

import "time"

// FormMode distinguishes editable forms from read-only views.
type FormMode string

const (
	ModeEdit FormMode = "EDIT"
	ModeView FormMode = "VIEW"
)

// FormStats are computed counts returned alongside a loaded form record.
type FormStats struct {
	StepCount         int `json:"stepCount"`
	FieldCount        int `json:"fieldCount"`
	VerifiedStepCount int `json:"verifiedStepCount"`
	SubmissionCount   int `json:"submissionCount"`
}

// FormRecord is the persisted shape of a form. The step/field tree is stored
// as a single JSON column; the store is authoritative for the final ID and
// timestamps it returns.
type FormRecord struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	Layout           FormLayout  `json:"layout"`
	Spacing          FormSpacing `json:"spacing"`
	Mode             FormMode    `json:"mode"`
	SubmitButtonText string      `json:"submitButtonText,omitempty"`
	CancelButtonText string      `json:"cancelButtonText,omitempty"`
	ResetButtonText  string      `json:"resetButtonText,omitempty"`
	ValidateOnSubmit bool        `json:"validateOnSubmit"`
	ValidateOnBlur   bool        `json:"validateOnBlur"`
	ValidateOnChange bool        `json:"validateOnChange"`
	IsPublished      bool        `json:"isPublished"`
	IsTemplate       bool        `json:"isTemplate"`
	TemplateID       string      `json:"templateId,omitempty"`
	PublishedAt      *time.Time  `json:"publishedAt,omitempty"`
	UserID           string      `json:"userId"`
	Steps            []FormStep  `json:"steps"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	Stats            *FormStats  `json:"stats,omitempty"`
}

// Config extracts the in-memory configuration tree from a record.
func (r *FormRecord) Config() FormConfig {
	return FormConfig{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Layout:      r.Layout,
		Spacing:     r.Spacing,
		Steps:       r.Steps,
	}
}

// ComputeStats derives the structural counts from the step tree. The
// submission count is filled in by the store.
func (r *FormRecord) ComputeStats(submissions int) FormStats {
	stats := FormStats{
		StepCount:       len(r.Steps),
		SubmissionCount: submissions,
	}
	for i := range r.Steps {
		stats.FieldCount += len(r.Steps[i].Fields)
		if v := r.Steps[i].Verification; v != nil && v.Enabled {
			stats.VerifiedStepCount++
		}
	}
	return stats
}

// SubmissionStatus marks a submission as in progress or finished.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "DRAFT"
	SubmissionCompleted SubmissionStatus = "COMPLETED"
)

// SubmissionRecord is one respondent's answer set, keyed by field name.
type SubmissionRecord struct {
	ID          string           `json:"id"`
	FormID      string           `json:"formId"`
	UserID      string           `json:"userId"`
	Data        map[string]any   `json:"data"`
	Status      SubmissionStatus `json:"status"`
	CurrentStep *int             `json:"currentStep,omitempty"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
