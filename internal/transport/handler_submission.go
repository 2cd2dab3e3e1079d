package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/validation"
	"github.com/formweave/formweave/model"
)

type submissionPayload struct {
	Data        map[string]any         `json:"data"`
	Status      model.SubmissionStatus `json:"status"`
	CurrentStep *int                   `json:"currentStep"`
}

func handleCreateSubmission(forms persistence.FormStore, subs persistence.SubmissionStore, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		formID := chi.URLParam(r, "formID")
		rec, err := forms.Get(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if !rec.IsPublished && rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		var payload submissionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if payload.Status == "" {
			payload.Status = model.SubmissionCompleted
		}
		if payload.Status != model.SubmissionDraft && payload.Status != model.SubmissionCompleted {
			WriteError(w, model.NewBadRequestError("invalid submission status"))
			return
		}

		sub := model.SubmissionRecord{
			FormID:      formID,
			UserID:      rctx.UserID,
			Data:        payload.Data,
			Status:      payload.Status,
			CurrentStep: payload.CurrentStep,
		}

		// Drafts are saved as-is; completed submissions must pass the
		// visibility-aware field rules.
		if sub.Status == model.SubmissionCompleted {
			cfg := rec.Config()
			report := validation.Form(&cfg, valuesByID(&cfg, payload.Data))
			if !report.IsValid() {
				metrics.RecordValidationFailure()
				WriteValidationError(w, report.Details(&cfg))
				return
			}
			now := time.Now().UTC()
			sub.SubmittedAt = &now
		}

		if err := subs.Create(r.Context(), &sub); err != nil {
			WriteError(w, err)
			return
		}
		metrics.RecordSubmission(string(sub.Status))
		WriteJSON(w, http.StatusCreated, sub)
	}
}

func handleListSubmissions(forms persistence.FormStore, subs persistence.SubmissionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		formID := chi.URLParam(r, "formID")
		rec, err := forms.Get(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		// Submitted data is only visible to the form owner.
		if rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		list, err := subs.ListByForm(r.Context(), formID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			WriteError(w, err)
			return
		}
		total, err := subs.CountByForm(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        list,
			"total_count": total,
		})
	}
}

func handleListDrafts(subs persistence.SubmissionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		drafts, err := subs.ListDraftsByUser(r.Context(), rctx.UserID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": drafts})
	}
}

// valuesByID rekeys a name-keyed submission payload by field ID, which is
// what the validation rules operate on. Unknown names are dropped.
func valuesByID(cfg *model.FormConfig, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for _, f := range cfg.AllFields() {
		if v, ok := data[f.Name]; ok {
			out[f.ID] = v
		}
	}
	return out
}
