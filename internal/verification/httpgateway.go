package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formweave/formweave/model"
)

// Settings tunes the HTTP gateway.
type Settings struct {
	Timeout          time.Duration
	MaxAttempts      int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	FailureThreshold int
	SuccessThreshold int
	BreakerCooldown  time.Duration
}

// GatewayMetrics receives retry and breaker activity.
// *observability.Metrics satisfies it.
type GatewayMetrics interface {
	RecordVerificationRetry()
	SetVerificationBreakerState(state float64)
}

type nopGatewayMetrics struct{}

func (nopGatewayMetrics) RecordVerificationRetry()            {}
func (nopGatewayMetrics) SetVerificationBreakerState(float64) {}

// GatewayOption configures optional gateway behavior.
type GatewayOption func(*HTTPGateway)

// WithGatewayMetrics records retries and breaker state on the given
// instruments.
func WithGatewayMetrics(m GatewayMetrics) GatewayOption {
	return func(g *HTTPGateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// HTTPGateway calls verification endpoints over HTTP with a shared circuit
// breaker and retry for idempotent requests.
type HTTPGateway struct {
	client  *http.Client
	breaker *CircuitBreaker
	cfg     Settings
	logger  *zap.Logger
	metrics GatewayMetrics
}

// NewHTTPGateway builds a gateway with pooled transport settings.
func NewHTTPGateway(cfg Settings, logger *zap.Logger, opts ...GatewayOption) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &HTTPGateway{
		client:  &http.Client{Timeout: timeout, Transport: transport},
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.BreakerCooldown),
		cfg:     cfg,
		logger:  logger,
		metrics: nopGatewayMetrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker exposes the circuit breaker for health reporting.
func (g *HTTPGateway) Breaker() *CircuitBreaker { return g.breaker }

// Call executes the request, retrying idempotent methods on transient
// failures with exponential backoff.
func (g *HTTPGateway) Call(ctx context.Context, req Request) (Response, error) {
	maxAttempts := g.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := isIdempotentMethod(req.Method)

	var lastErr error
	var lastResp Response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
		}

		resp, err := g.callOnce(ctx, req)
		if err != nil {
			lastErr = err
			if !canRetry || !isRetryableError(err) {
				return Response{}, err
			}
			g.metrics.RecordVerificationRetry()
			g.logger.Debug("verification retry after error",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Error(err))
			continue
		}
		if isRetryableStatus(resp.StatusCode) && canRetry && attempt < maxAttempts-1 {
			lastResp = resp
			g.metrics.RecordVerificationRetry()
			g.logger.Debug("verification retry after status",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Int("status", resp.StatusCode))
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return Response{}, lastErr
	}
	return lastResp, nil
}

func (g *HTTPGateway) callOnce(ctx context.Context, req Request) (Response, error) {
	if err := g.breaker.Allow(); err != nil {
		g.publishBreakerState()
		return Response{}, model.NewBackendUnavailableError()
	}

	httpReq, err := g.buildRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.breaker.RecordFailure()
		g.publishBreakerState()
		if isConnectionError(err) {
			return Response{}, model.NewBackendUnavailableError()
		}
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, model.NewBackendTimeoutError()
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return Response{}, model.NewBackendTimeoutError()
		}
		return Response{}, fmt.Errorf("verification: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		g.breaker.RecordFailure()
		g.publishBreakerState()
		return Response{}, fmt.Errorf("verification: read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		g.breaker.RecordFailure()
	} else if resp.StatusCode < 400 {
		// 4xx are payload problems, not infrastructure failures.
		g.breaker.RecordSuccess()
	}
	g.publishBreakerState()

	out := Response{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		var parsed any
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			out.Body = parsed
		}
	}
	return out, nil
}

func (g *HTTPGateway) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	reqURL := req.URL
	var body io.Reader
	if method == http.MethodGet || method == http.MethodHead {
		if len(req.Params) > 0 {
			q := url.Values{}
			for k, v := range req.Params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			sep := "?"
			if strings.Contains(reqURL, "?") {
				sep = "&"
			}
			reqURL += sep + q.Encode()
		}
	} else if req.Params != nil {
		payload, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("verification: marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("verification: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	return httpReq, nil
}

// publishBreakerState mirrors the breaker into the gauge encoding
// 0=closed, 1=half-open, 2=open.
func (g *HTTPGateway) publishBreakerState() {
	var v float64
	switch g.breaker.State() {
	case BreakerHalfOpen:
		v = 1
	case BreakerOpen:
		v = 2
	}
	g.metrics.SetVerificationBreakerState(v)
}

func (g *HTTPGateway) backoff(attempt int) time.Duration {
	base := g.cfg.Backoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << (attempt - 1)
	if max := g.cfg.MaxBackoff; max > 0 && d > max {
		d = max
	}
	return d
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code == model.ErrBackendUnavailable || env.Code == model.ErrBackendTimeout
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
