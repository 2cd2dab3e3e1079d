package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// VerifyBackend is a configurable HTTP test server that simulates an external
// step-verification service. Responses are served in order; the last
// configured response repeats once the script is exhausted. All received
// requests are recorded for later assertion.
type VerifyBackend struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	responses []verifyResponse
	current   int
	received  []*RecordedRequest
}

// RecordedRequest captures the details of a request received by the backend.
type RecordedRequest struct {
	Method     string
	Path       string
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

type verifyResponse struct {
	status int
	body   any
	delay  time.Duration
}

// newVerifyBackend creates a verification backend that answers 200 with an
// empty body until configured otherwise.
func newVerifyBackend(t *testing.T) *VerifyBackend {
	t.Helper()

	vb := &VerifyBackend{t: t}
	vb.server = httptest.NewServer(http.HandlerFunc(vb.handle))
	t.Cleanup(vb.server.Close)
	return vb
}

func (vb *VerifyBackend) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := &RecordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    r.Header.Clone(),
		RawBody:    raw,
		ReceivedAt: time.Now(),
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}

	vb.mu.Lock()
	vb.received = append(vb.received, rec)
	resp := verifyResponse{status: http.StatusOK, body: map[string]any{"success": true}}
	if len(vb.responses) > 0 {
		resp = vb.responses[vb.current]
		if vb.current < len(vb.responses)-1 {
			vb.current++
		}
	}
	vb.mu.Unlock()

	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	if resp.body != nil {
		json.NewEncoder(w).Encode(resp.body)
	}
}

// URL returns the backend's base URL.
func (vb *VerifyBackend) URL() string {
	return vb.server.URL
}

// RespondWith appends a scripted response. The last one repeats.
func (vb *VerifyBackend) RespondWith(status int, body any) *VerifyBackend {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.responses = append(vb.responses, verifyResponse{status: status, body: body})
	return vb
}

// RespondSlow appends a scripted response served after the given delay.
func (vb *VerifyBackend) RespondSlow(status int, body any, delay time.Duration) *VerifyBackend {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.responses = append(vb.responses, verifyResponse{status: status, body: body, delay: delay})
	return vb
}

// Requests returns all recorded requests.
func (vb *VerifyBackend) Requests() []*RecordedRequest {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	out := make([]*RecordedRequest, len(vb.received))
	copy(out, vb.received)
	return out
}

// Reset clears recorded requests and the response script.
func (vb *VerifyBackend) Reset() {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.received = nil
	vb.responses = nil
	vb.current = 0
}
