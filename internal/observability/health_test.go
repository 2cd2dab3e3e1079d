package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeChecker struct {
	err   error
	delay time.Duration
}

func (f *fakeChecker) HealthCheck(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestHandleHealth_returnsOK(t *testing.T) {
	// Set build-time variables for test.
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	handler := HandleHealth()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.Commit != "abc1234" {
		t.Errorf("commit = %q, want abc1234", resp.Commit)
	}
}

func TestHandleHealth_defaultValues(t *testing.T) {
	handler := HandleHealth()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp HealthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Version == "" {
		t.Error("version should have a default value")
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		FormStore:       &fakeChecker{},
		SubmissionStore: &fakeChecker{},
		DraftCache:      &fakeChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	for _, name := range []string{"form_store", "submission_store", "draft_cache"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("%s = %q, want ok", name, resp.Checks[name].Status)
		}
	}
}

func TestHandleReady_storeUnavailable(t *testing.T) {
	checks := ReadinessChecks{
		FormStore:  &fakeChecker{err: errors.New("connection refused")},
		DraftCache: &fakeChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["form_store"].Status != "error" {
		t.Errorf("form_store = %q, want error", resp.Checks["form_store"].Status)
	}
	if resp.Checks["form_store"].Error != "connection refused" {
		t.Errorf("form_store error = %q, want connection refused", resp.Checks["form_store"].Error)
	}
	if resp.Checks["draft_cache"].Status != "ok" {
		t.Errorf("draft_cache = %q, want ok", resp.Checks["draft_cache"].Status)
	}
}

func TestHandleReady_skipsNilCheckers(t *testing.T) {
	checks := ReadinessChecks{
		FormStore: &fakeChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Checks) != 1 {
		t.Errorf("checks = %d, want 1", len(resp.Checks))
	}
	if _, exists := resp.Checks["draft_cache"]; exists {
		t.Error("draft_cache should not appear when no checker is configured")
	}
}

func TestHandleReady_reportsLatency(t *testing.T) {
	checks := ReadinessChecks{
		FormStore: &fakeChecker{delay: 10 * time.Millisecond},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["form_store"].LatencyMs < 10 {
		t.Errorf("latency = %dms, want >= 10ms", resp.Checks["form_store"].LatencyMs)
	}
}
