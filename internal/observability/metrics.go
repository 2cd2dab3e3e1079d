package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the form service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Form lifecycle metrics
	FormSavesTotal      *prometheus.CounterVec
	FormSaveDuration    prometheus.Histogram
	FormsPublishedTotal *prometheus.CounterVec
	SubmissionsTotal    *prometheus.CounterVec
	ValidationFailures  prometheus.Counter

	// Draft cache metrics
	DraftWritesTotal     *prometheus.CounterVec
	DraftRecoveriesTotal prometheus.Counter
	DraftDiscardsTotal   prometheus.Counter

	// Verification metrics
	VerificationsTotal       *prometheus.CounterVec
	VerificationDuration     prometheus.Histogram
	VerificationBreakerState prometheus.Gauge
	VerificationRetriesTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formweave_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formweave_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formweave_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Form lifecycle
		FormSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_form_saves_total",
			Help: "Total number of form save attempts.",
		}, []string{"outcome"}),
		FormSaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "formweave_form_save_duration_seconds",
			Help:    "Form save duration in seconds.",
			Buckets: backendDurationBuckets,
		}),
		FormsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_forms_published_total",
			Help: "Total publication state changes.",
		}, []string{"action"}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_submissions_total",
			Help: "Total number of form submissions.",
		}, []string{"status"}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formweave_validation_failures_total",
			Help: "Total number of submissions rejected by validation.",
		}),

		// Drafts
		DraftWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_draft_writes_total",
			Help: "Total draft cache writes.",
		}, []string{"outcome"}),
		DraftRecoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formweave_draft_recoveries_total",
			Help: "Total sessions initialized from a cached draft.",
		}),
		DraftDiscardsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formweave_draft_discards_total",
			Help: "Total stale drafts discarded at initialization.",
		}),

		// Verification
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formweave_verifications_total",
			Help: "Total step verification attempts.",
		}, []string{"outcome"}),
		VerificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "formweave_verification_duration_seconds",
			Help:    "Step verification round trip duration in seconds.",
			Buckets: backendDurationBuckets,
		}),
		VerificationBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formweave_verification_circuit_breaker_state",
			Help: "Verification circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		VerificationRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formweave_verification_retries_total",
			Help: "Total verification request retries.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Form lifecycle
		m.FormSavesTotal,
		m.FormSaveDuration,
		m.FormsPublishedTotal,
		m.SubmissionsTotal,
		m.ValidationFailures,
		// Drafts
		m.DraftWritesTotal,
		m.DraftRecoveriesTotal,
		m.DraftDiscardsTotal,
		// Verification
		m.VerificationsTotal,
		m.VerificationDuration,
		m.VerificationBreakerState,
		m.VerificationRetriesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordFormSave records one save attempt.
func (m *Metrics) RecordFormSave(outcome string, duration time.Duration) {
	m.FormSavesTotal.WithLabelValues(outcome).Inc()
	m.FormSaveDuration.Observe(duration.Seconds())
}

// RecordPublication records a publish or unpublish.
func (m *Metrics) RecordPublication(action string) {
	m.FormsPublishedTotal.WithLabelValues(action).Inc()
}

// RecordSubmission records a submission by status.
func (m *Metrics) RecordSubmission(status string) {
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// RecordValidationFailure records a submission rejected by validation.
func (m *Metrics) RecordValidationFailure() {
	m.ValidationFailures.Inc()
}

// RecordDraftWrite records a draft cache write.
func (m *Metrics) RecordDraftWrite(outcome string) {
	m.DraftWritesTotal.WithLabelValues(outcome).Inc()
}

// RecordDraftRecovery records a session restored from a draft.
func (m *Metrics) RecordDraftRecovery() {
	m.DraftRecoveriesTotal.Inc()
}

// RecordDraftDiscard records a stale draft thrown away.
func (m *Metrics) RecordDraftDiscard() {
	m.DraftDiscardsTotal.Inc()
}

// RecordVerification records one verification attempt.
func (m *Metrics) RecordVerification(outcome string, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
	m.VerificationDuration.Observe(duration.Seconds())
}

// SetVerificationBreakerState sets the verification circuit breaker gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetVerificationBreakerState(state float64) {
	m.VerificationBreakerState.Set(state)
}

// RecordVerificationRetry records a verification request retry.
func (m *Metrics) RecordVerificationRetry() {
	m.VerificationRetriesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
