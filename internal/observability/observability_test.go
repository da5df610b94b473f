package observability

import (
	"context"
	"log/slog"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/spikehq/spike/internal/config"
	"github.com/spikehq/spike/internal/llm"
)

// --- No-op path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerOrNil_Nil(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
	if obs.MetricsOrNil() != nil {
		t.Error("expected nil metrics from nil Observability")
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m == nil {
		t.Fatal("expected non-nil MetricsCollector")
	}
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	m.LLMRequestsTotal.WithLabelValues("litellm", "success").Inc()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metrics")
	}
}

// --- InstrumentedProvider ---

type stubProvider struct {
	resp *llm.Response
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	return s.resp, s.err
}

func counterValue(t *testing.T, m *MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestInstrumentedProvider_RecordsSuccess(t *testing.T) {
	m := NewMetricsCollector()
	inner := &stubProvider{resp: &llm.Response{
		Text:  "hi",
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 4},
	}}

	p := NewInstrumentedProvider(inner, m, nil, nil)
	if _, err := p.Complete(context.Background(), &llm.Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got := counterValue(t, m, "spike_llm_requests_total", map[string]string{
		"provider": "stub", "status": "success",
	})
	if got != 1 {
		t.Errorf("expected 1 success request, got %v", got)
	}

	in := counterValue(t, m, "spike_llm_tokens_used_total", map[string]string{
		"provider": "stub", "direction": "input",
	})
	if in != 10 {
		t.Errorf("expected 10 input tokens recorded, got %v", in)
	}
}

func TestInstrumentedProvider_RecordsError(t *testing.T) {
	m := NewMetricsCollector()
	inner := &stubProvider{err: &llm.ModelError{Kind: llm.KindUnavailable, Message: "down"}}

	p := NewInstrumentedProvider(inner, m, nil, NewErrorRateMonitor(nil))
	if _, err := p.Complete(context.Background(), &llm.Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected error")
	}

	got := counterValue(t, m, "spike_llm_requests_total", map[string]string{
		"provider": "stub", "status": "error",
	})
	if got != 1 {
		t.Errorf("expected 1 error request, got %v", got)
	}
}

// --- HealthChecker ---

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	if got := h.CheckReady(context.Background()); got.Status != "ok" {
		t.Errorf("expected ok with no checks, got %s", got.Status)
	}
}

func TestHealthChecker_DegradedOnFailure(t *testing.T) {
	h := NewHealthChecker(slog.New(slog.DiscardHandler))
	h.AddCheck("model", func(context.Context) error { return nil })
	h.AddCheck("agent", func(context.Context) error {
		return context.DeadlineExceeded
	})

	got := h.CheckReady(context.Background())
	if got.Status != "degraded" {
		t.Errorf("expected degraded, got %s", got.Status)
	}
	if got.Checks["model"].Status != "ok" {
		t.Error("passing check should report ok")
	}
	if got.Checks["agent"].Status != "fail" {
		t.Error("failing check should report fail")
	}
}

// --- ErrorRateMonitor ---

func TestErrorRateMonitor_NilSafe(t *testing.T) {
	var m *ErrorRateMonitor
	m.RecordError("op")
	m.RecordSuccess("op")
}

func TestErrorRateMonitor_Counts(t *testing.T) {
	m := NewErrorRateMonitor(slog.New(slog.DiscardHandler))
	for i := 0; i < 6; i++ {
		m.RecordError("llm_request")
	}
	// Crossing the threshold must not panic or block.
	m.RecordSuccess("llm_request")

	m.mu.Lock()
	defer m.mu.Unlock()
	if got := m.window(m.errors, "llm_request").count(); got != 6 {
		t.Errorf("expected 6 errors in window, got %d", got)
	}
}
