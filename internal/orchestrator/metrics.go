package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spikehq/spike/internal/agent"
)

// Metrics holds Prometheus metrics for the orchestration engine.
// All metrics use the spike_engine_ namespace. A nil *Metrics is valid
// and turns every recording into a no-op.
type Metrics struct {
	RoutesTotal     *prometheus.CounterVec
	RouteDuration   *prometheus.HistogramVec
	IntentsTotal    *prometheus.CounterVec
	AgentCallsTotal *prometheus.CounterVec
	Iterations      prometheus.Histogram
	PartialAnswers  prometheus.Counter
}

// NewMetrics creates and registers engine metrics on the given registry.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "routes_total",
			Help:      "Total routed queries by strategy.",
		}, []string{"strategy"}),

		RouteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "route_duration_seconds",
			Help:      "End-to-end route duration in seconds by strategy.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),

		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "intents_total",
			Help:      "Classification verdicts by intent and unroutable reason.",
		}, []string{"intent", "reason"}),

		AgentCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "agent_calls_total",
			Help:      "Agent invocations by domain and final status.",
		}, []string{"domain", "status"}),

		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "iterations",
			Help:      "Iterations consumed per iterative-strategy request.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),

		PartialAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spike",
			Subsystem: "engine",
			Name:      "partial_answers_total",
			Help:      "Answers delivered with at least one failed sub-call.",
		}),
	}

	reg.MustRegister(
		m.RoutesTotal,
		m.RouteDuration,
		m.IntentsTotal,
		m.AgentCallsTotal,
		m.Iterations,
		m.PartialAnswers,
	)

	return m
}

func (m *Metrics) route(strategy Strategy, partial bool, d time.Duration) {
	if m == nil {
		return
	}
	m.RoutesTotal.WithLabelValues(string(strategy)).Inc()
	m.RouteDuration.WithLabelValues(string(strategy)).Observe(d.Seconds())
	if partial {
		m.PartialAnswers.Inc()
	}
}

func (m *Metrics) intent(in Intent) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(string(in.Kind), in.Reason).Inc()
}

func (m *Metrics) agentCall(d agent.Domain, status string) {
	if m == nil {
		return
	}
	m.AgentCallsTotal.WithLabelValues(string(d), status).Inc()
}

func (m *Metrics) iterations(n int) {
	if m == nil {
		return
	}
	m.Iterations.Observe(float64(n))
}
