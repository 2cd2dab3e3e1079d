package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formweave/formweave/internal/builder"
	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/validation"
	"github.com/formweave/formweave/model"
)

// formPayload is the writable subset of a form record accepted on create
// and update. Ownership, publication state, and timestamps are managed
// server-side.
type formPayload struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Layout           model.FormLayout  `json:"layout"`
	Spacing          model.FormSpacing `json:"spacing"`
	SubmitButtonText string            `json:"submitButtonText"`
	CancelButtonText string            `json:"cancelButtonText"`
	ResetButtonText  string            `json:"resetButtonText"`
	ValidateOnSubmit *bool             `json:"validateOnSubmit"`
	ValidateOnBlur   *bool             `json:"validateOnBlur"`
	ValidateOnChange *bool             `json:"validateOnChange"`
	IsTemplate       *bool             `json:"isTemplate"`
	TemplateID       string            `json:"templateId"`
	Steps            []model.FormStep  `json:"steps"`
}

func (p *formPayload) apply(rec *model.FormRecord) {
	if p.Title != "" {
		rec.Title = p.Title
	}
	rec.Description = p.Description
	if p.Layout != "" {
		rec.Layout = p.Layout
	}
	if p.Spacing != "" {
		rec.Spacing = p.Spacing
	}
	rec.SubmitButtonText = p.SubmitButtonText
	rec.CancelButtonText = p.CancelButtonText
	rec.ResetButtonText = p.ResetButtonText
	if p.ValidateOnSubmit != nil {
		rec.ValidateOnSubmit = *p.ValidateOnSubmit
	}
	if p.ValidateOnBlur != nil {
		rec.ValidateOnBlur = *p.ValidateOnBlur
	}
	if p.ValidateOnChange != nil {
		rec.ValidateOnChange = *p.ValidateOnChange
	}
	if p.IsTemplate != nil {
		rec.IsTemplate = *p.IsTemplate
	}
	if p.TemplateID != "" {
		rec.TemplateID = p.TemplateID
	}
	if p.Steps != nil {
		rec.Steps = p.Steps
	}
}

func handleListForms(store persistence.FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		opts := persistence.ListOptions{
			UserID:        rctx.UserID,
			TemplatesOnly: r.URL.Query().Get("templates") == "true",
			PublishedOnly: r.URL.Query().Get("published") == "true",
			Limit:         queryInt(r, "limit", 50),
			Offset:        queryInt(r, "offset", 0),
		}

		forms, err := store.List(r.Context(), opts)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": forms})
	}
}

func handleCreateForm(store persistence.FormStore, ids identifier.Generator, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var payload formPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		rec := model.FormRecord{
			Title:            "Untitled form",
			Layout:           model.LayoutVertical,
			Spacing:          model.SpacingNormal,
			Mode:             model.ModeEdit,
			ValidateOnSubmit: true,
			UserID:           rctx.UserID,
		}
		payload.apply(&rec)

		if len(rec.Steps) == 0 {
			// Seed the mandatory first step.
			cfg := rec.Config()
			builder.New(&cfg, ids)
			rec.Steps = cfg.Steps
		}

		cfg := rec.Config()
		if details := validation.CheckConfig(&cfg); len(details) > 0 {
			WriteValidationError(w, details)
			return
		}

		start := time.Now()
		if err := store.Create(r.Context(), &rec); err != nil {
			metrics.RecordFormSave("failure", time.Since(start))
			WriteError(w, err)
			return
		}
		metrics.RecordFormSave("success", time.Since(start))
		WriteJSON(w, http.StatusCreated, rec)
	}
}

func handleGetForm(store persistence.FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		rec, err := store.Get(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		// Published forms are readable by any authenticated user so they
		// can be rendered; unpublished forms only by their owner.
		if rec.UserID != rctx.UserID && !rec.IsPublished {
			WriteNotFound(w, "form not found")
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func handleUpdateForm(store persistence.FormStore, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		rec, err := store.Get(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		var payload formPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		payload.apply(&rec)

		cfg := rec.Config()
		if details := validation.CheckConfig(&cfg); len(details) > 0 {
			WriteValidationError(w, details)
			return
		}

		start := time.Now()
		if err := store.Update(r.Context(), &rec); err != nil {
			metrics.RecordFormSave("failure", time.Since(start))
			WriteError(w, err)
			return
		}
		metrics.RecordFormSave("success", time.Since(start))
		WriteJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteForm(store persistence.FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		formID := chi.URLParam(r, "formID")
		rec, err := store.Get(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		if err := store.Delete(r.Context(), formID); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleDuplicateForm(store persistence.FormStore, ids identifier.Generator, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		rec, err := store.Get(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		cfg := rec.Config()
		cloned := builder.CloneForm(&cfg, ids)

		dup := rec
		dup.ID = cloned.ID
		dup.Title = cloned.Title
		dup.Steps = cloned.Steps
		dup.IsPublished = false
		dup.PublishedAt = nil
		dup.Stats = nil

		start := time.Now()
		if err := store.Create(r.Context(), &dup); err != nil {
			metrics.RecordFormSave("failure", time.Since(start))
			WriteError(w, err)
			return
		}
		metrics.RecordFormSave("success", time.Since(start))
		WriteJSON(w, http.StatusCreated, dup)
	}
}

func handleSetPublished(store persistence.FormStore, metrics *observability.Metrics, publish bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		formID := chi.URLParam(r, "formID")
		rec, err := store.Get(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if rec.UserID != rctx.UserID {
			WriteNotFound(w, "form not found")
			return
		}

		if publish {
			// Only structurally sound forms can go live.
			cfg := rec.Config()
			if details := validation.CheckConfig(&cfg); len(details) > 0 {
				WriteValidationError(w, details)
				return
			}
		}

		if err := store.SetPublished(r.Context(), formID, publish); err != nil {
			WriteError(w, err)
			return
		}

		action := "publish"
		if !publish {
			action = "unpublish"
		}
		metrics.RecordPublication(action)

		rec, err = store.Get(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

// --- helpers ---

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
