package verification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/formweave/formweave/model"
)

func testGateway(cfg Settings) *HTTPGateway {
	return NewHTTPGateway(cfg, nil)
}

func TestHTTPGateway_PostSendsJSONBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer srv.Close()

	gw := testGateway(Settings{})
	resp, err := gw.Call(context.Background(), Request{
		Method: "POST",
		URL:    srv.URL,
		Params: map[string]any{"siret": "123", "n": 2.0},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.Success() || resp.Message() != "ok" {
		t.Errorf("resp = %+v", resp)
	}
	if got["siret"] != "123" || got["n"] != 2.0 {
		t.Errorf("backend saw %v", got)
	}
}

func TestHTTPGateway_GetSendsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") != "abc" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := testGateway(Settings{})
	resp, err := gw.Call(context.Background(), Request{
		Method: "GET",
		URL:    srv.URL,
		Params: map[string]any{"code": "abc"},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.Success() {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHTTPGateway_Non2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"message":"bad siret"}`))
	}))
	defer srv.Close()

	gw := testGateway(Settings{})
	resp, err := gw.Call(context.Background(), Request{Method: "POST", URL: srv.URL})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Success() {
		t.Error("422 should not count as success")
	}
	if resp.StatusCode != 422 || resp.Message() != "bad siret" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPGateway_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	gw := testGateway(Settings{})
	_, err := gw.Call(context.Background(), Request{Method: "POST", URL: srv.URL})
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrBackendUnavailable {
		t.Fatalf("err = %v, want BACKEND_UNAVAILABLE", err)
	}
}

func TestHTTPGateway_RetriesIdempotentOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Settings{MaxAttempts: 3, Backoff: time.Millisecond}
	gw := testGateway(cfg)

	resp, err := gw.Call(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.StatusCode != http.StatusOK || hits.Load() != 2 {
		t.Errorf("status %d after %d hits, want recovery on second", resp.StatusCode, hits.Load())
	}

	// a POST must not be replayed
	hits.Store(0)
	gw2 := testGateway(cfg)
	resp, err = gw2.Call(context.Background(), Request{Method: "POST", URL: srv.URL})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || hits.Load() != 1 {
		t.Errorf("POST saw %d hits with status %d, want a single attempt", hits.Load(), resp.StatusCode)
	}
}

type countingGatewayMetrics struct {
	retries      atomic.Int32
	breakerState atomic.Int64 // stored as the raw gauge value
}

func (m *countingGatewayMetrics) RecordVerificationRetry() { m.retries.Add(1) }

func (m *countingGatewayMetrics) SetVerificationBreakerState(state float64) {
	m.breakerState.Store(int64(state))
}

func TestHTTPGateway_RecordsRetriesAndBreakerState(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	counts := &countingGatewayMetrics{}
	gw := NewHTTPGateway(Settings{MaxAttempts: 3, Backoff: time.Millisecond},
		nil, WithGatewayMetrics(counts))

	resp, err := gw.Call(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if counts.retries.Load() != 2 {
		t.Errorf("retries = %d, want 2", counts.retries.Load())
	}
	if counts.breakerState.Load() != 0 {
		t.Errorf("breaker gauge = %d, want closed", counts.breakerState.Load())
	}
}

func TestHTTPGateway_PublishesOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	counts := &countingGatewayMetrics{}
	gw := NewHTTPGateway(Settings{FailureThreshold: 1, BreakerCooldown: time.Minute},
		nil, WithGatewayMetrics(counts))

	if _, err := gw.Call(context.Background(), Request{Method: "POST", URL: srv.URL}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if counts.breakerState.Load() != 2 {
		t.Errorf("breaker gauge = %d, want open", counts.breakerState.Load())
	}
}

func TestHTTPGateway_BreakerOpensAfterServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := testGateway(Settings{FailureThreshold: 2, BreakerCooldown: time.Minute})
	for i := 0; i < 2; i++ {
		if _, err := gw.Call(context.Background(), Request{Method: "POST", URL: srv.URL}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if gw.Breaker().State() != BreakerOpen {
		t.Fatalf("breaker = %v, want open", gw.Breaker().State())
	}
	_, err := gw.Call(context.Background(), Request{Method: "POST", URL: srv.URL})
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrBackendUnavailable {
		t.Errorf("open breaker err = %v, want BACKEND_UNAVAILABLE", err)
	}
}
