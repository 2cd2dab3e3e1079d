package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/verification"
	"github.com/formweave/formweave/model"
)

type verificationRequest struct {
	Step   model.FormStep `json:"step"`
	Values map[string]any `json:"values"`
}

type verificationResponse struct {
	Allowed bool                   `json:"allowed"`
	State   string                 `json:"state"`
	Message string                 `json:"message,omitempty"`
	History []verification.Attempt `json:"history"`
}

// handleVerifyStep proxies a step's external verification call so endpoint
// credentials and the breaker live server-side. Values are keyed by field
// name, matching the submission payload shape.
func handleVerifyStep(gateway verification.Gateway, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var req verificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if v := req.Step.Verification; v != nil && v.Enabled && v.Endpoint == "" {
			WriteError(w, model.NewBadRequestError("verification endpoint is required"))
			return
		}

		session := verification.NewSession(gateway)
		start := time.Now()
		allowed, err := session.VerifyStep(r.Context(), &req.Step, req.Values)
		if err != nil {
			WriteError(w, err)
			return
		}

		outcome := "failure"
		if session.State() == verification.StateSuccess {
			outcome = "success"
		}
		metrics.RecordVerification(outcome, time.Since(start))

		WriteJSON(w, http.StatusOK, verificationResponse{
			Allowed: allowed,
			State:   session.State().String(),
			Message: session.Message(),
			History: session.History(),
		})
	}
}
