// Package verification gates multi-step progression on external HTTP
// checks: it assembles the outgoing payload from step mappings, calls the
// configured endpoint through a resilient gateway, and tracks the outcome
// per editing session.
package verification

import "context"

// Request is one outgoing verification call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]any
}

// Response is the backend's answer. Body is the parsed JSON payload, nil
// when the body was empty or not JSON.
type Response struct {
	StatusCode int
	Body       any
}

// Gateway executes verification requests. Implementations return an error
// only for transport-level failures; any HTTP status comes back as a
// Response.
type Gateway interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// Success reports whether the backend accepted the verification: a 2xx
// status whose payload does not carry success=false.
func (r Response) Success() bool {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	if m, ok := r.Body.(map[string]any); ok {
		if s, ok := m["success"].(bool); ok {
			return s
		}
	}
	return true
}

// Message extracts the human-readable message from the payload, if any.
func (r Response) Message() string {
	if m, ok := r.Body.(map[string]any); ok {
		if s, ok := m["message"].(string); ok {
			return s
		}
		if s, ok := m["error"].(string); ok {
			return s
		}
	}
	return ""
}
