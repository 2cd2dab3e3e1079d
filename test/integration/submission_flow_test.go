package integration

import (
	"net/http"
	"testing"

	"github.com/formweave/formweave/model"
)

// publishContactForm creates and publishes a one-step form with a required
// email field, returning the stored record.
func publishContactForm(t *testing.T, h *TestHarness, token string) model.FormRecord {
	t.Helper()

	var created model.FormRecord
	resp := h.POST("/api/forms", map[string]any{"title": "Contact"}, token)
	h.AssertJSON(t, resp, http.StatusCreated, &created)

	stepID := created.Steps[0].ID
	resp = h.PUT("/api/forms/"+created.ID, map[string]any{
		"steps": []map[string]any{{
			"id":    stepID,
			"title": "Contact details",
			"order": 0,
			"fields": []map[string]any{{
				"id":         "field_email",
				"stepId":     stepID,
				"name":       "email",
				"type":       "email",
				"label":      "Email",
				"order":      0,
				"validation": map[string]any{"required": true, "email": true},
			}},
		}},
	}, token)
	h.AssertStatus(t, resp, http.StatusOK)

	var published model.FormRecord
	resp = h.POST("/api/forms/"+created.ID+"/publish", nil, token)
	h.AssertJSON(t, resp, http.StatusOK, &published)
	return published
}

func TestSubmissionFlow_CompletedSubmission(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.GenerateToken(UserClaims("alice"))
	visitor := h.GenerateToken(UserClaims("bob"))

	form := publishContactForm(t, h, owner)

	// Invalid data is rejected with field details.
	var errBody struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	resp := h.POST("/api/forms/"+form.ID+"/submissions", map[string]any{
		"data": map[string]any{"email": "not-an-address"},
	}, visitor)
	h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &errBody)
	if len(errBody.Error.Details) != 1 || errBody.Error.Details[0].Field != "email" {
		t.Fatalf("details = %+v", errBody.Error.Details)
	}

	// Valid data is accepted.
	var sub model.SubmissionRecord
	resp = h.POST("/api/forms/"+form.ID+"/submissions", map[string]any{
		"data": map[string]any{"email": "bob@example.com"},
	}, visitor)
	h.AssertJSON(t, resp, http.StatusCreated, &sub)
	if sub.Status != model.SubmissionCompleted || sub.SubmittedAt == nil {
		t.Fatalf("submission = %+v", sub)
	}

	// The owner sees the submission; the visitor does not.
	var list struct {
		Data       []model.SubmissionRecord `json:"data"`
		TotalCount int                      `json:"total_count"`
	}
	h.AssertJSON(t, h.GET("/api/forms/"+form.ID+"/submissions", owner), http.StatusOK, &list)
	if list.TotalCount != 1 || list.Data[0].Data["email"] != "bob@example.com" {
		t.Errorf("list = %+v", list)
	}
	h.AssertStatus(t, h.GET("/api/forms/"+form.ID+"/submissions", visitor), http.StatusNotFound)
}

func TestSubmissionFlow_DraftAndResume(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.GenerateToken(UserClaims("alice"))
	visitor := h.GenerateToken(UserClaims("bob"))

	form := publishContactForm(t, h, owner)

	// A draft is accepted without validation.
	var draft model.SubmissionRecord
	resp := h.POST("/api/forms/"+form.ID+"/submissions", map[string]any{
		"data":        map[string]any{},
		"status":      "DRAFT",
		"currentStep": 0,
	}, visitor)
	h.AssertJSON(t, resp, http.StatusCreated, &draft)
	if draft.Status != model.SubmissionDraft {
		t.Fatalf("draft = %+v", draft)
	}

	// The visitor finds it again under /drafts; the owner's list is empty.
	var drafts struct {
		Data []model.SubmissionRecord `json:"data"`
	}
	h.AssertJSON(t, h.GET("/api/drafts", visitor), http.StatusOK, &drafts)
	if len(drafts.Data) != 1 || drafts.Data[0].ID != draft.ID {
		t.Errorf("drafts = %+v", drafts.Data)
	}
	h.AssertJSON(t, h.GET("/api/drafts", owner), http.StatusOK, &drafts)
	if len(drafts.Data) != 0 {
		t.Errorf("owner drafts = %+v, want none", drafts.Data)
	}
}

func TestSubmissionFlow_FormStatsCountSubmissions(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.GenerateToken(UserClaims("alice"))

	form := publishContactForm(t, h, owner)

	for i := 0; i < 3; i++ {
		resp := h.POST("/api/forms/"+form.ID+"/submissions", map[string]any{
			"data": map[string]any{"email": "alice@example.com"},
		}, owner)
		h.AssertStatus(t, resp, http.StatusCreated)
	}

	var got model.FormRecord
	h.AssertJSON(t, h.GET("/api/forms/"+form.ID, owner), http.StatusOK, &got)
	if got.Stats == nil || got.Stats.SubmissionCount != 3 {
		t.Errorf("stats = %+v, want 3 submissions", got.Stats)
	}
}
