package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/validation"
	"github.com/formweave/formweave/model"
)

// draftSession groups what a builder-draft request needs to run a
// persistence bridge for one form.
type draftSession struct {
	forms     persistence.FormStore
	drafts    persistence.DraftCache
	ids       identifier.Generator
	metrics   *observability.Metrics
	logger    *zap.Logger
	staleness time.Duration
}

func (d draftSession) bridge() *persistence.Bridge {
	return persistence.NewBridge(d.forms, d.drafts, d.ids, d.logger, d.staleness,
		persistence.WithDraftMetrics(d.metrics))
}

// owned loads the form and enforces owner-only access. Drafts are builder
// state, so unlike published forms they are never visible to other users.
func (d draftSession) owned(r *http.Request) (model.FormRecord, string, error) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		return model.FormRecord{}, "", model.NewUnauthorizedError("missing request context")
	}
	formID := chi.URLParam(r, "formID")
	rec, err := d.forms.Get(r.Context(), formID)
	if err != nil {
		return model.FormRecord{}, "", err
	}
	if rec.UserID != rctx.UserID {
		return model.FormRecord{}, "", model.NewNotFoundError("form not found")
	}
	return rec, formID, nil
}

// handleRecoverDraft loads the editing state for a form, preferring an
// unexpired working draft over the stored record.
func (d draftSession) handleRecoverDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, formID, err := d.owned(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		rec, fromDraft, err := d.bridge().Initialize(r.Context(), formID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"form":      rec,
			"fromDraft": fromDraft,
		})
	}
}

// handleWriteDraft merges a working configuration into the session and
// writes it through to the draft cache. Drafts hold work in progress, so
// the configuration is not validated here; validation runs on commit.
func (d draftSession) handleWriteDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, formID, err := d.owned(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		var cfg model.FormConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		b := d.bridge()
		if _, _, err := b.Initialize(r.Context(), formID); err != nil {
			WriteError(w, err)
			return
		}
		if err := b.MarkDirty(r.Context(), cfg); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, b.Record())
	}
}

// handleCommitDraft persists the working draft to the store and clears it.
func (d draftSession) handleCommitDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, formID, err := d.owned(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		b := d.bridge()
		if _, _, err := b.Initialize(r.Context(), formID); err != nil {
			WriteError(w, err)
			return
		}

		rec := b.Record()
		cfg := rec.Config()
		if details := validation.CheckConfig(&cfg); len(details) > 0 {
			WriteValidationError(w, details)
			return
		}

		start := time.Now()
		if err := b.Save(r.Context()); err != nil {
			d.metrics.RecordFormSave("failure", time.Since(start))
			WriteError(w, err)
			return
		}
		d.metrics.RecordFormSave("success", time.Since(start))
		WriteJSON(w, http.StatusOK, b.Record())
	}
}

// handleDiscardDraft throws the working draft away, keeping the stored
// record untouched. Discarding a missing draft succeeds.
func (d draftSession) handleDiscardDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, formID, err := d.owned(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		if err := d.drafts.Clear(r.Context(), formID); err != nil {
			WriteError(w, err)
			return
		}
		d.metrics.RecordDraftDiscard()
		WriteJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
	}
}
