package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the counters and histograms the engine exposes. It plays
// the role the teacher's metrics.ChainMetrics interface plays for
// ChainAdapter: a single observability seam every dispatch path reports
// through, but backed by a real Prometheus registry instead of a
// hand-rolled text exporter, since prometheus/client_golang is already a
// direct dependency elsewhere in the corpus.
type Metrics struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	pipelines   prometheus.Gauge
	dispatchDur *prometheus.HistogramVec
}

// NewMetrics builds a Metrics bound to a fresh, private registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

// NewMetricsOn builds a Metrics whose collectors register onto registry
// instead of a private one, so the engine's counters can be served from
// the same process-wide /metrics endpoint as internal/metrics's C7/C9
// collectors.
func NewMetricsOn(registry *prometheus.Registry) *Metrics {
	return newMetrics(registry)
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_engine",
			Name:      "evaluations_total",
			Help:      "Condition evaluations performed, by outcome.",
		}, []string{"outcome"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_engine",
			Name:      "dispatches_total",
			Help:      "Step dispatch attempts, by action kind and result.",
		}, []string{"action", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_engine",
			Name:      "dispatch_retries_total",
			Help:      "Dispatch retry attempts, by action kind.",
		}, []string{"action"}),
		pipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline_engine",
			Name:      "active_pipelines",
			Help:      "Pipelines currently held in active state.",
		}),
		dispatchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline_engine",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall-clock time spent in a single dispatch call, by action kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}

	registry.MustRegister(m.evaluations, m.dispatches, m.retries, m.pipelines, m.dispatchDur)
	return m
}

// Registry exposes the underlying registry for an HTTP /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) recordEvaluation(outcome string) {
	m.evaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordDispatch(action, result string, duration time.Duration) {
	m.dispatches.WithLabelValues(action, result).Inc()
	m.dispatchDur.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) recordRetry(action string) {
	m.retries.WithLabelValues(action).Inc()
}

func (m *Metrics) setActivePipelines(n int) {
	m.pipelines.Set(float64(n))
}
