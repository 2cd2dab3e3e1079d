package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/formweave/formweave/model"
)

// State is where a session's current verification stands.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ErrVerificationInFlight is returned when a step verification is requested
// while another one is still running in the same session.
var ErrVerificationInFlight = errors.New("verification already in progress")

// maxHistory caps the retained attempts per session.
const maxHistory = 10

// Attempt is one recorded verification call: what was sent and what came
// back, so a session's history can be replayed for debugging.
type Attempt struct {
	Timestamp  time.Time      `json:"timestamp"`
	StepID     string         `json:"stepId"`
	Endpoint   string         `json:"endpoint"`
	Method     string         `json:"method"`
	Request    map[string]any `json:"request,omitempty"`
	Success    bool           `json:"success"`
	StatusCode int            `json:"statusCode,omitempty"`
	Response   any            `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"message,omitempty"`
}

const (
	msgRetry   = "The verification service is temporarily unavailable. Please try again."
	msgGeneric = "Verification failed. Please check your input and try again."
)

// Session tracks verification state for one editing or filling session. A
// session runs at most one verification at a time; concurrent requests get
// ErrVerificationInFlight. Safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	gateway  Gateway
	state    State
	message  string
	history  []Attempt
	inFlight bool
}

// NewSession creates a session calling through the given gateway.
func NewSession(gw Gateway) *Session {
	return &Session{gateway: gw}
}

// State returns the session's current verification state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Message returns the message of the latest outcome, empty while idle.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// History returns recorded attempts, most recent first.
func (s *Session) History() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attempt, len(s.history))
	copy(out, s.history)
	return out
}

// Reset clears the outcome state, keeping the history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight {
		s.state = StateIdle
		s.message = ""
	}
}

// AssemblePayload builds the outgoing parameter map for a step: static
// parameters first, then field mappings resolved against the current values
// keyed by field name. Mappings whose source has no value are skipped.
func AssemblePayload(step *model.FormStep, valuesByName map[string]any) map[string]any {
	v := step.Verification
	if v == nil {
		return nil
	}
	payload := make(map[string]any, len(v.StaticParams)+len(v.FieldMappings))
	for k, val := range v.StaticParams {
		payload[k] = val
	}
	for _, m := range v.FieldMappings {
		name := fieldName(step, m.FieldID)
		if name == "" {
			continue
		}
		if val, ok := valuesByName[name]; ok && val != nil {
			payload[m.ParameterName] = val
		}
	}
	return payload
}

func fieldName(step *model.FormStep, fieldID string) string {
	if f := step.FindField(fieldID); f != nil {
		return f.Name
	}
	return ""
}

// VerifyStep runs the step's verification and reports whether progression
// is allowed. Steps without an enabled verification, or whose verification
// has no endpoint configured, always pass. A backend rejection blocks only
// when the step requires validation; infrastructure failures never block an
// optional gate.
func (s *Session) VerifyStep(ctx context.Context, step *model.FormStep, valuesByName map[string]any) (bool, error) {
	v := step.Verification
	if v == nil || !v.Enabled || v.Endpoint == "" {
		return true, nil
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return false, ErrVerificationInFlight
	}
	s.inFlight = true
	s.state = StateValidating
	s.message = ""
	s.mu.Unlock()

	payload := AssemblePayload(step, valuesByName)
	resp, err := s.gateway.Call(ctx, Request{
		Method:  v.Method,
		URL:     v.Endpoint,
		Headers: v.Headers,
		Params:  payload,
	})

	success, message, statusCode := outcome(v, resp, err)

	attempt := Attempt{
		Timestamp:  time.Now(),
		StepID:     step.ID,
		Endpoint:   v.Endpoint,
		Method:     v.Method,
		Request:    payload,
		Success:    success,
		StatusCode: statusCode,
		Response:   resp.Body,
		Message:    message,
	}
	if err != nil {
		attempt.Error = err.Error()
	}

	s.mu.Lock()
	s.inFlight = false
	if success {
		s.state = StateSuccess
	} else {
		s.state = StateFailure
	}
	s.message = message
	s.history = append([]Attempt{attempt}, s.history...)
	if len(s.history) > maxHistory {
		s.history = s.history[:maxHistory]
	}
	s.mu.Unlock()

	if success {
		return true, nil
	}
	return !v.ValidationRequired, nil
}

// outcome classifies a gateway result into success, user-facing message,
// and status code.
func outcome(v *model.StepVerification, resp Response, err error) (bool, string, int) {
	if err != nil {
		return false, msgRetry, 0
	}
	if resp.Success() {
		msg := v.SuccessMessage
		if msg == "" {
			msg = resp.Message()
		}
		return true, msg, resp.StatusCode
	}

	var msg string
	switch {
	case resp.StatusCode == 400 || resp.StatusCode == 422:
		msg = resp.Message()
		if msg == "" {
			msg = v.ErrorMessage
		}
	case resp.StatusCode >= 500:
		msg = msgRetry
	default:
		msg = v.ErrorMessage
		if msg == "" {
			msg = resp.Message()
		}
	}
	if msg == "" {
		msg = msgGeneric
	}
	return false, msg, resp.StatusCode
}
