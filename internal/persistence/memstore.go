package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/model"
)

// MemoryFormStore is an in-memory FormStore for tests and single-instance
// deployments without a database.
type MemoryFormStore struct {
	mu    sync.RWMutex
	forms map[string]model.FormRecord
	ids   identifier.Generator
	subs  *MemorySubmissionStore
}

// NewMemoryFormStore creates an in-memory form store. The submission store
// may be nil; then submission counts are always zero.
func NewMemoryFormStore(ids identifier.Generator, subs *MemorySubmissionStore) *MemoryFormStore {
	return &MemoryFormStore{forms: make(map[string]model.FormRecord), ids: ids, subs: subs}
}

// Create stores a new record, assigning an id when absent.
func (s *MemoryFormStore) Create(_ context.Context, rec *model.FormRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = s.ids.FormID()
	}
	if _, exists := s.forms[rec.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("form %q already exists", rec.ID))
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.forms[rec.ID] = snapshot(rec)
	return nil
}

// Get returns a record with stats computed.
func (s *MemoryFormStore) Get(ctx context.Context, id string) (model.FormRecord, error) {
	s.mu.RLock()
	rec, ok := s.forms[id]
	s.mu.RUnlock()
	if !ok {
		return model.FormRecord{}, model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	submissions := 0
	if s.subs != nil {
		submissions, _ = s.subs.CountByForm(ctx, id)
	}
	out := snapshot(&rec)
	stats := out.ComputeStats(submissions)
	out.Stats = &stats
	return out, nil
}

// List returns matching records, newest first.
func (s *MemoryFormStore) List(_ context.Context, opts ListOptions) ([]model.FormRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FormRecord
	for _, rec := range s.forms {
		if opts.UserID != "" && rec.UserID != opts.UserID {
			continue
		}
		if opts.TemplatesOnly && !rec.IsTemplate {
			continue
		}
		if opts.PublishedOnly && !rec.IsPublished {
			continue
		}
		out = append(out, snapshot(&rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Update replaces a stored record.
func (s *MemoryFormStore) Update(_ context.Context, rec *model.FormRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.forms[rec.ID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", rec.ID))
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.forms[rec.ID] = snapshot(rec)
	return nil
}

// Delete removes a record.
func (s *MemoryFormStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[id]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	delete(s.forms, id)
	return nil
}

// SetPublished flips publication, stamping PublishedAt on publish.
func (s *MemoryFormStore) SetPublished(_ context.Context, id string, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.forms[id]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	rec.IsPublished = published
	rec.PublishedAt = nil
	if published {
		now := time.Now().UTC()
		rec.PublishedAt = &now
	}
	rec.UpdatedAt = time.Now().UTC()
	s.forms[id] = rec
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryFormStore) HealthCheck(context.Context) error { return nil }

// snapshot deep-copies the step tree so callers cannot mutate stored state
// through a returned record.
func snapshot(rec *model.FormRecord) model.FormRecord {
	out := *rec
	cfg := rec.Config()
	out.Steps = cfg.Clone().Steps
	out.Stats = nil
	return out
}

// MemorySubmissionStore is an in-memory SubmissionStore.
type MemorySubmissionStore struct {
	mu   sync.RWMutex
	subs map[string]model.SubmissionRecord
	ids  identifier.Generator
}

// NewMemorySubmissionStore creates an in-memory submission store.
func NewMemorySubmissionStore(ids identifier.Generator) *MemorySubmissionStore {
	return &MemorySubmissionStore{subs: make(map[string]model.SubmissionRecord), ids: ids}
}

// Create stores a submission, assigning an id when absent.
func (s *MemorySubmissionStore) Create(_ context.Context, sub *model.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = s.ids.SubmissionID()
	}
	if _, exists := s.subs[sub.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("submission %q already exists", sub.ID))
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subs[sub.ID] = copySubmission(sub)
	return nil
}

// Get returns one submission.
func (s *MemorySubmissionStore) Get(_ context.Context, id string) (model.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return model.SubmissionRecord{}, model.NewNotFoundError(fmt.Sprintf("submission %q not found", id))
	}
	return copySubmission(&sub), nil
}

// ListByForm returns a form's submissions, newest first.
func (s *MemorySubmissionStore) ListByForm(_ context.Context, formID string, limit, offset int) ([]model.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SubmissionRecord
	for _, sub := range s.subs {
		if sub.FormID == formID {
			out = append(out, copySubmission(&sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDraftsByUser returns a user's in-progress submissions, newest first.
func (s *MemorySubmissionStore) ListDraftsByUser(_ context.Context, userID string) ([]model.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SubmissionRecord
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == model.SubmissionDraft {
			out = append(out, copySubmission(&sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Update replaces a submission.
func (s *MemorySubmissionStore) Update(_ context.Context, sub *model.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subs[sub.ID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("submission %q not found", sub.ID))
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	s.subs[sub.ID] = copySubmission(sub)
	return nil
}

// Delete removes one submission.
func (s *MemorySubmissionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("submission %q not found", id))
	}
	delete(s.subs, id)
	return nil
}

// CountByForm counts a form's submissions.
func (s *MemorySubmissionStore) CountByForm(_ context.Context, formID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.subs {
		if sub.FormID == formID {
			n++
		}
	}
	return n, nil
}

// DeleteByForm removes every submission of a form, mirroring the database
// schema's cascade.
func (s *MemorySubmissionStore) DeleteByForm(_ context.Context, formID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		if sub.FormID == formID {
			delete(s.subs, id)
		}
	}
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemorySubmissionStore) HealthCheck(context.Context) error { return nil }

func copySubmission(sub *model.SubmissionRecord) model.SubmissionRecord {
	out := *sub
	if sub.Data != nil {
		out.Data = make(map[string]any, len(sub.Data))
		for k, v := range sub.Data {
			out.Data[k] = v
		}
	}
	return out
}
