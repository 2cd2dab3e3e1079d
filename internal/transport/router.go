package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/formweave/formweave/internal/config"
	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/verification"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	IDs          identifier.Generator
	Forms        persistence.FormStore
	Submissions  persistence.SubmissionStore
	Drafts       persistence.DraftCache
	Gateway      verification.Gateway
	Authenticate func(http.Handler) http.Handler
	Readiness    http.HandlerFunc
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	ready := deps.Readiness
	if ready == nil {
		ready = observability.HandleReady(observability.ReadinessChecks{})
	}
	r.Get("/readyz", ready)
	metricsPath := deps.Config.Observability.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Method(http.MethodGet, metricsPath, observability.Handler())

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	}
	if deps.Drafts == nil {
		deps.Drafts = persistence.NewMemoryDraftCache()
	}
	drafts := draftSession{
		forms:     deps.Forms,
		drafts:    deps.Drafts,
		ids:       deps.IDs,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		staleness: deps.Config.Drafts.Staleness,
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.Metrics.MetricsMiddleware)
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))

		r.Get("/forms", handleListForms(deps.Forms))
		r.Post("/forms", handleCreateForm(deps.Forms, deps.IDs, deps.Metrics))
		r.Get("/forms/{formID}", handleGetForm(deps.Forms))
		r.Put("/forms/{formID}", handleUpdateForm(deps.Forms, deps.Metrics))
		r.Delete("/forms/{formID}", handleDeleteForm(deps.Forms))
		r.Post("/forms/{formID}/duplicate", handleDuplicateForm(deps.Forms, deps.IDs, deps.Metrics))
		r.Post("/forms/{formID}/publish", handleSetPublished(deps.Forms, deps.Metrics, true))
		r.Post("/forms/{formID}/unpublish", handleSetPublished(deps.Forms, deps.Metrics, false))

		r.Get("/forms/{formID}/draft", drafts.handleRecoverDraft())
		r.Put("/forms/{formID}/draft", drafts.handleWriteDraft())
		r.Post("/forms/{formID}/draft/commit", drafts.handleCommitDraft())
		r.Delete("/forms/{formID}/draft", drafts.handleDiscardDraft())

		r.Post("/forms/{formID}/submissions", handleCreateSubmission(deps.Forms, deps.Submissions, deps.Metrics))
		r.Get("/forms/{formID}/submissions", handleListSubmissions(deps.Forms, deps.Submissions))
		r.Get("/drafts", handleListDrafts(deps.Submissions))

		r.Post("/step-verification", handleVerifyStep(deps.Gateway, deps.Metrics))
		r.Get("/field-templates", handleFieldTemplates())
	})

	return r
}
