package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/af-corp/copilot-relay/internal/httputil"
	"github.com/af-corp/copilot-relay/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type stubChecker struct {
	result LimitResult
	keys   []string
}

func (s *stubChecker) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	s.keys = append(s.keys, key)
	return s.result, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	mw := Middleware(NewLimiter(nil, nil), 100, nil)
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	// Check rate limit headers
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h != "99" {
		t.Errorf("expected X-RateLimit-Remaining-Requests=99, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
}

func TestMiddleware_DefaultRPM(t *testing.T) {
	mw := Middleware(NewLimiter(nil, nil), 0, nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explain", nil))

	if h := rec.Header().Get(headerRateLimitRequests); h != "60" {
		t.Errorf("expected default RPM=60, got %s", h)
	}
}

func TestMiddleware_KeyedByClientIP(t *testing.T) {
	stub := &stubChecker{result: LimitResult{Allowed: true, Remaining: 1}}
	mw := Middleware(stub, 2, nil)

	req := httptest.NewRequest(http.MethodPost, "/debug", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	mw(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	if len(stub.keys) != 1 || stub.keys[0] != "rpm:203.0.113.7" {
		t.Errorf("unexpected limiter keys %v", stub.keys)
	}
}

func TestMiddleware_Denied(t *testing.T) {
	stub := &stubChecker{result: LimitResult{
		Allowed:    false,
		ResetAt:    time.Now().Add(time.Minute),
		RetryAfter: 30 * time.Second,
	}}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	mw := Middleware(stub, 1, metrics)

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if called {
		t.Error("expected handler not to be called when limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRetryAfter); h != "30" {
		t.Errorf("expected Retry-After=30, got %s", h)
	}

	var apiErr httputil.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if apiErr.Error.Code != "rate_limited" {
		t.Errorf("expected code 'rate_limited', got %s", apiErr.Error.Code)
	}

	var m dto.Metric
	metrics.RateLimitedTotal.Write(&m)
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected rate-limited counter 1, got %v", m.GetCounter().GetValue())
	}
}
