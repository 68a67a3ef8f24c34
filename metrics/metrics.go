package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creator_pulse"

// Evaluation outcomes
const (
	OutcomeDetected = "detected"
	OutcomeNone     = "none"
	OutcomeError    = "error"
)

// Metrics holds the engine collectors on their own registry
type Metrics struct {
	registry *prometheus.Registry

	Evaluations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Deliveries  *prometheus.CounterVec
	Runs        *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Alert and insight evaluations by kind, type and outcome",
		}, []string{"kind", "type", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a single creator evaluation",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notifications handed to the delivery layer by kind and status",
		}, []string{"kind", "status"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Scheduled runs by kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.Evaluations,
		m.Duration,
		m.Deliveries,
		m.Runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one evaluation. A nil receiver is a no-op.
func (m *Metrics) ObserveEvaluation(kind, eventType, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(kind, eventType, outcome).Inc()
	m.Duration.WithLabelValues(kind).Observe(took.Seconds())
}

// ObserveDelivery records a delivery attempt
func (m *Metrics) ObserveDelivery(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.Deliveries.WithLabelValues(kind, status).Inc()
}

// ObserveRun counts a scheduled run
func (m *Metrics) ObserveRun(kind string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(kind).Inc()
}
