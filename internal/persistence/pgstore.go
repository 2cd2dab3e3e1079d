package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/model"
)

// PgFormStore is a PostgreSQL-backed FormStore using pgx/v5. The step tree
// is stored as one JSONB column.
type PgFormStore struct {
	pool *pgxpool.Pool
	ids  identifier.Generator
}

// NewPgFormStore creates a PostgreSQL form store.
func NewPgFormStore(pool *pgxpool.Pool, ids identifier.Generator) *PgFormStore {
	return &PgFormStore{pool: pool, ids: ids}
}

const formColumns = `
	id, title, description, layout, spacing, mode,
	submit_button_text, cancel_button_text, reset_button_text,
	validate_on_submit, validate_on_blur, validate_on_change,
	is_published, is_template, template_id, published_at,
	user_id, steps, created_at, updated_at`

// Create inserts a new form record, assigning an id when absent.
func (s *PgFormStore) Create(ctx context.Context, rec *model.FormRecord) error {
	if rec.ID == "" {
		rec.ID = s.ids.FormID()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO forms (`+formColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20
		)`,
		rec.ID, rec.Title, rec.Description, rec.Layout, rec.Spacing, rec.Mode,
		rec.SubmitButtonText, rec.CancelButtonText, rec.ResetButtonText,
		rec.ValidateOnSubmit, rec.ValidateOnBlur, rec.ValidateOnChange,
		rec.IsPublished, rec.IsTemplate, nullable(rec.TemplateID), rec.PublishedAt,
		rec.UserID, stepsJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

// Get retrieves a form with its submission count folded into Stats.
func (s *PgFormStore) Get(ctx context.Context, id string) (model.FormRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+formColumns+`,
		       (SELECT count(*) FROM submissions WHERE form_id = forms.id)
		FROM forms WHERE id = $1`, id)

	rec, err := scanForm(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FormRecord{}, model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	if err != nil {
		return model.FormRecord{}, fmt.Errorf("query form: %w", err)
	}
	return rec, nil
}

// List returns form records matching the options, newest first.
func (s *PgFormStore) List(ctx context.Context, opts ListOptions) ([]model.FormRecord, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE 1=1`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if opts.UserID != "" {
		query += ` AND user_id = ` + arg(opts.UserID)
	}
	if opts.TemplatesOnly {
		query += ` AND is_template`
	}
	if opts.PublishedOnly {
		query += ` AND is_published`
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ` + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var out []model.FormRecord
	for rows.Next() {
		rec, err := scanForm(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update replaces the stored record. Missing ids are NOT_FOUND.
func (s *PgFormStore) Update(ctx context.Context, rec *model.FormRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE forms SET
			title = $1, description = $2, layout = $3, spacing = $4, mode = $5,
			submit_button_text = $6, cancel_button_text = $7, reset_button_text = $8,
			validate_on_submit = $9, validate_on_blur = $10, validate_on_change = $11,
			is_published = $12, is_template = $13, template_id = $14, published_at = $15,
			steps = $16, updated_at = $17
		WHERE id = $18`,
		rec.Title, rec.Description, rec.Layout, rec.Spacing, rec.Mode,
		rec.SubmitButtonText, rec.CancelButtonText, rec.ResetButtonText,
		rec.ValidateOnSubmit, rec.ValidateOnBlur, rec.ValidateOnChange,
		rec.IsPublished, rec.IsTemplate, nullable(rec.TemplateID), rec.PublishedAt,
		stepsJSON, rec.UpdatedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", rec.ID))
	}
	return nil
}

// Delete removes a form and, through the schema's cascade, its submissions.
func (s *PgFormStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	return nil
}

// SetPublished flips publication, stamping published_at on publish.
func (s *PgFormStore) SetPublished(ctx context.Context, id string, published bool) error {
	var publishedAt *time.Time
	if published {
		now := time.Now().UTC()
		publishedAt = &now
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE forms SET is_published = $1, published_at = $2, updated_at = $3
		WHERE id = $4`,
		published, publishedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("publish form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *PgFormStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanForm(row pgx.Row, withCount bool) (model.FormRecord, error) {
	var rec model.FormRecord
	var stepsJSON []byte
	var templateID *string
	var submissions int

	dest := []any{
		&rec.ID, &rec.Title, &rec.Description, &rec.Layout, &rec.Spacing, &rec.Mode,
		&rec.SubmitButtonText, &rec.CancelButtonText, &rec.ResetButtonText,
		&rec.ValidateOnSubmit, &rec.ValidateOnBlur, &rec.ValidateOnChange,
		&rec.IsPublished, &rec.IsTemplate, &templateID, &rec.PublishedAt,
		&rec.UserID, &stepsJSON, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if withCount {
		dest = append(dest, &submissions)
	}
	if err := row.Scan(dest...); err != nil {
		return model.FormRecord{}, err
	}
	if templateID != nil {
		rec.TemplateID = *templateID
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &rec.Steps); err != nil {
			return model.FormRecord{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if withCount {
		stats := rec.ComputeStats(submissions)
		rec.Stats = &stats
	}
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PgSubmissionStore is a PostgreSQL-backed SubmissionStore.
type PgSubmissionStore struct {
	pool *pgxpool.Pool
	ids  identifier.Generator
}

// NewPgSubmissionStore creates a PostgreSQL submission store.
func NewPgSubmissionStore(pool *pgxpool.Pool, ids identifier.Generator) *PgSubmissionStore {
	return &PgSubmissionStore{pool: pool, ids: ids}
}

const submissionColumns = `
	id, form_id, user_id, data, status, current_step,
	submitted_at, created_at, updated_at`

// Create inserts a submission, assigning an id when absent.
func (s *PgSubmissionStore) Create(ctx context.Context, sub *model.SubmissionRecord) error {
	if sub.ID == "" {
		sub.ID = s.ids.SubmissionID()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	dataJSON, err := json.Marshal(sub.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.FormID, sub.UserID, dataJSON, sub.Status, sub.CurrentStep,
		sub.SubmittedAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Get retrieves one submission.
func (s *PgSubmissionStore) Get(ctx context.Context, id string) (model.SubmissionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SubmissionRecord{}, model.NewNotFoundError(fmt.Sprintf("submission %q not found", id))
	}
	if err != nil {
		return model.SubmissionRecord{}, fmt.Errorf("query submission: %w", err)
	}
	return sub, nil
}

// ListByForm returns a form's submissions, newest first.
func (s *PgSubmissionStore) ListByForm(ctx context.Context, formID string, limit, offset int) ([]model.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE form_id = $1 ORDER BY created_at DESC`
	args := []any{formID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []model.SubmissionRecord
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ListDraftsByUser returns a user's in-progress submissions, newest first.
func (s *PgSubmissionStore) ListDraftsByUser(ctx context.Context, userID string) ([]model.SubmissionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = $1 AND status = $2 ORDER BY updated_at DESC`,
		userID, model.SubmissionDraft)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []model.SubmissionRecord
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Update replaces a submission's data and status.
func (s *PgSubmissionStore) Update(ctx context.Context, sub *model.SubmissionRecord) error {
	sub.UpdatedAt = time.Now().UTC()
	dataJSON, err := json.Marshal(sub.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET
			data = $1, status = $2, current_step = $3,
			submitted_at = $4, updated_at = $5
		WHERE id = $6`,
		dataJSON, sub.Status, sub.CurrentStep,
		sub.SubmittedAt, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("submission %q not found", sub.ID))
	}
	return nil
}

// Delete removes one submission.
func (s *PgSubmissionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("submission %q not found", id))
	}
	return nil
}

// CountByForm counts a form's submissions.
func (s *PgSubmissionStore) CountByForm(ctx context.Context, formID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM submissions WHERE form_id = $1`, formID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// HealthCheck verifies database connectivity.
func (s *PgSubmissionStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanSubmission(row pgx.Row) (model.SubmissionRecord, error) {
	var sub model.SubmissionRecord
	var dataJSON []byte
	err := row.Scan(
		&sub.ID, &sub.FormID, &sub.UserID, &dataJSON, &sub.Status, &sub.CurrentStep,
		&sub.SubmittedAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return model.SubmissionRecord{}, err
	}
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &sub.Data); err != nil {
			return model.SubmissionRecord{}, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return sub, nil
}
