// Package persistence stores form records and submissions, caches working
// drafts, and bridges the builder's in-memory tree to durable storage.
package persistence

import (
	"context"

	"github.com/formweave/formweave/model"
)

// ListOptions filters and pages form listings.
type ListOptions struct {
	UserID        string
	TemplatesOnly bool
	PublishedOnly bool
	Limit         int
	Offset        int
}

// FormStore persists form records. Implementations return NOT_FOUND
// envelopes for missing ids and are authoritative for timestamps.
type FormStore interface {
	Create(ctx context.Context, rec *model.FormRecord) error
	Get(ctx context.Context, id string) (model.FormRecord, error)
	List(ctx context.Context, opts ListOptions) ([]model.FormRecord, error)
	Update(ctx context.Context, rec *model.FormRecord) error
	Delete(ctx context.Context, id string) error
	SetPublished(ctx context.Context, id string, published bool) error
}

// SubmissionStore persists respondent answer sets.
type SubmissionStore interface {
	Create(ctx context.Context, sub *model.SubmissionRecord) error
	Get(ctx context.Context, id string) (model.SubmissionRecord, error)
	ListByForm(ctx context.Context, formID string, limit, offset int) ([]model.SubmissionRecord, error)
	ListDraftsByUser(ctx context.Context, userID string) ([]model.SubmissionRecord, error)
	Update(ctx context.Context, sub *model.SubmissionRecord) error
	Delete(ctx context.Context, id string) error
	CountByForm(ctx context.Context, formID string) (int, error)
}
