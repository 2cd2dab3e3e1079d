// Package integration provides a reusable test harness for end-to-end
// integration testing of the formweave API server. It starts a full HTTP
// server with in-memory stores, a mock verification backend, and a test
// JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formweave/formweave/internal/config"
	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/transport"
	"github.com/formweave/formweave/internal/verification"
)

// TestHarness encapsulates a fully wired server instance with a mock
// verification backend for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Forms       *persistence.MemoryFormStore
	Submissions *persistence.MemorySubmissionStore
	Backend     *VerifyBackend

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout time.Duration
	verify         verification.Settings
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithVerificationSettings overrides the verification gateway settings,
// letting tests tighten timeouts and breaker thresholds.
func WithVerificationSettings(s verification.Settings) HarnessOption {
	return func(c *harnessConfig) {
		c.verify = s
	}
}

// NewTestHarness creates and starts a full server instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		verify: verification.Settings{
			Timeout:          5 * time.Second,
			MaxAttempts:      1,
			FailureThreshold: 100,
			SuccessThreshold: 1,
			BreakerCooldown:  time.Minute,
		},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	ids := identifier.New()
	h.Submissions = persistence.NewMemorySubmissionStore(ids)
	h.Forms = persistence.NewMemoryFormStore(ids, h.Submissions)
	h.Backend = newVerifyBackend(t)
	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: time.Hour,
		Algorithms:   []string{"RS256"},
	}

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour, nil)
	gateway := verification.NewHTTPGateway(hc.verify, nil)

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		IDs:          ids,
		Forms:        h.Forms,
		Submissions:  h.Submissions,
		Gateway:      gateway,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// AssertJSON checks the response status and decodes the body into out.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode response: %v, body = %s", err, data)
		}
	}
}

// AssertStatus checks only the response status and drains the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, wantStatus int) {
	t.Helper()
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, wantStatus, data)
	}
}
