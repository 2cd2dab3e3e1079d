package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/formweave/formweave/internal/config"
	"github.com/formweave/formweave/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Recovery(zap.NewNop())(panicking)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}
	h := CORS(cfg)(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
			t.Errorf("Max-Age = %q", got)
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}

func TestRequestID(t *testing.T) {
	t.Run("propagates inbound header", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = CorrelationIDFrom(r.Context())
		}))
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Correlation-Id", "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if seen != "abc-123" {
			t.Errorf("context id = %q", seen)
		}
		if got := w.Header().Get("X-Correlation-Id"); got != "abc-123" {
			t.Errorf("response header = %q", got)
		}
	})

	t.Run("generates when missing", func(t *testing.T) {
		h := RequestID(okHandler())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

		if got := w.Header().Get("X-Correlation-Id"); len(got) != 32 {
			t.Errorf("generated id = %q, want 32 hex chars", got)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestBuildRequestContext(t *testing.T) {
	var rctx *model.RequestContext
	h := BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx = model.RequestContextFrom(r.Context())
	}))

	claims := map[string]any{
		"sub":   "user-42",
		"email": "jo@example.com",
		"roles": []any{"editor", "admin"},
	}
	req := httptest.NewRequest("GET", "/", nil)
	ctx := WithClaims(req.Context(), claims)
	ctx = context.WithValue(ctx, correlationIDKey{}, "corr-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(ctx))

	if rctx == nil {
		t.Fatal("no request context built")
	}
	if rctx.UserID != "user-42" || rctx.Email != "jo@example.com" {
		t.Errorf("identity = %q / %q", rctx.UserID, rctx.Email)
	}
	if len(rctx.Roles) != 2 || rctx.Roles[1] != "admin" {
		t.Errorf("roles = %v", rctx.Roles)
	}
	if rctx.CorrelationID != "corr-1" {
		t.Errorf("correlation id = %q", rctx.CorrelationID)
	}
}

func TestBuildRequestContext_noClaims(t *testing.T) {
	var rctx *model.RequestContext
	h := BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx = model.RequestContextFrom(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if rctx == nil {
		t.Fatal("no request context built")
	}
	if rctx.UserID != "" {
		t.Errorf("userId = %q, want empty without claims", rctx.UserID)
	}
}

func TestHandlerTimeout(t *testing.T) {
	var deadlineSet bool
	h := HandlerTimeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadlineSet = r.Context().Deadline()
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if !deadlineSet {
		t.Error("no deadline on request context")
	}

	// Zero duration disables the deadline.
	deadlineSet = false
	h = HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadlineSet = r.Context().Deadline()
	}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if deadlineSet {
		t.Error("deadline set despite zero timeout")
	}
}
