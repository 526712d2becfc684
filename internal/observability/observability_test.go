package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/mtafiti/internal/config"
	"github.com/jkaninda/mtafiti/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs != nil {
		t.Fatalf("expected nil Observability for nil config, got %+v", obs)
	}
	if obs.MetricsOrNil() != nil {
		t.Error("MetricsOrNil on nil receiver should return nil")
	}
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil receiver should return nil")
	}
	obs.Shutdown(context.Background())
}

func TestNew_MetricsEnabled(t *testing.T) {
	cfg := &config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}
	obs, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs.Metrics == nil {
		t.Fatal("expected metrics collector")
	}
	if obs.Metrics.Registry == nil {
		t.Fatal("expected custom registry")
	}
	if obs.Tracer != nil {
		t.Error("tracing not enabled, expected nil tracer setup")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	status := h.CheckHealth()
	if status.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_CheckReady(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	h.AddCheck("db", func(ctx context.Context) error { return nil })
	h.AddCheck("provider", func(ctx context.Context) error { return errors.New("connection refused") })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", status.Status)
	}
	if status.Checks["db"].Status != "ok" {
		t.Errorf("db check = %+v, want ok", status.Checks["db"])
	}
	if status.Checks["provider"].Status != "fail" {
		t.Errorf("provider check = %+v, want fail", status.Checks["provider"])
	}
	if status.Checks["provider"].Message != "connection refused" {
		t.Errorf("provider message = %q", status.Checks["provider"].Message)
	}
}

func TestHealthChecker_ProbeTimeout(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	h.timeout = 10 * time.Millisecond
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("status = %q, want degraded for a probe that exceeds its timeout", status.Status)
	}
	if status.Checks["slow"].Status != "fail" {
		t.Errorf("slow check = %+v, want fail", status.Checks["slow"])
	}
}

func TestHealthChecker_ReplaceProbe(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	h.AddCheck("database", func(ctx context.Context) error { return errors.New("down") })
	h.AddCheck("database", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, re-registered probe should replace the failing one", status.Status)
	}
	if len(status.Checks) != 1 {
		t.Errorf("checks = %d, want 1", len(status.Checks))
	}
}

func TestHealthChecker_CheckReady_NoChecks(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

type stubLLM struct {
	name string
	resp *llm.Response
	err  error
}

func (s *stubLLM) Name() string { return s.name }

func (s *stubLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return s.resp, s.err
}

func counterValue(families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == labelName && l.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestInstrumentedProvider_Success(t *testing.T) {
	metrics := NewMetricsCollector()
	stub := &stubLLM{
		name: "gemini",
		resp: &llm.Response{
			Content: "hello",
			Usage:   llm.Usage{InputTokens: 10, OutputTokens: 20},
		},
	}
	p := NewInstrumentedProvider(stub, metrics, nil)

	if p.Name() != "gemini" {
		t.Errorf("Name = %q", p.Name())
	}

	resp, err := p.Generate(context.Background(), &llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if got := counterValue(families, "mtafiti_llm_requests_total", "status", "success"); got != 1 {
		t.Errorf("success requests = %v, want 1", got)
	}
	if got := counterValue(families, "mtafiti_llm_tokens_used_total", "direction", "input"); got != 10 {
		t.Errorf("input tokens = %v, want 10", got)
	}
	if got := counterValue(families, "mtafiti_llm_tokens_used_total", "direction", "output"); got != 20 {
		t.Errorf("output tokens = %v, want 20", got)
	}
}

func TestInstrumentedProvider_Error(t *testing.T) {
	metrics := NewMetricsCollector()
	stub := &stubLLM{name: "gemini", err: errors.New("rate limited")}
	p := NewInstrumentedProvider(stub, metrics, nil)

	if _, err := p.Generate(context.Background(), &llm.Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error")
	}

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if got := counterValue(families, "mtafiti_llm_requests_total", "status", "error"); got != 1 {
		t.Errorf("error requests = %v, want 1", got)
	}
}

func TestInstrumentedProvider_NilMetrics(t *testing.T) {
	stub := &stubLLM{name: "gemini", resp: &llm.Response{Content: "ok"}}
	p := NewInstrumentedProvider(stub, nil, nil)

	resp, err := p.Generate(context.Background(), &llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetricsCollector()
	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if got := counterValue(families, "mtafiti_http_requests_total", "status_code", "201"); got != 1 {
		t.Errorf("requests with status 201 = %v, want 1", got)
	}
	if got := counterValue(families, "mtafiti_http_requests_total", "path", "/v1/reports"); got != 1 {
		t.Errorf("requests for path = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware_DefaultStatus(t *testing.T) {
	metrics := NewMetricsCollector()
	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if got := counterValue(families, "mtafiti_http_requests_total", "status_code", "200"); got != 1 {
		t.Errorf("requests with status 200 = %v, want 1", got)
	}
}

func TestStatusWriter_SupportsHijack(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	var w http.ResponseWriter = sw
	if _, ok := w.(http.Hijacker); !ok {
		t.Fatal("wrapped writer must expose http.Hijacker for WebSocket upgrades")
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Fatal("wrapped writer must expose http.Flusher")
	}
	if got := sw.Unwrap(); got != http.ResponseWriter(rec) {
		t.Errorf("Unwrap returned %T, want the underlying writer", got)
	}

	// The recorder itself cannot hijack; the error must come from there,
	// not from a missing method on the wrapper.
	if _, _, err := sw.Hijack(); err == nil {
		t.Error("expected hijack error from a non-hijackable underlying writer")
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("next handler not called")
	}
}
