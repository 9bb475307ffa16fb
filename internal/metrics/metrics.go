// Package metrics is the process-wide Metrics Registry (A2): a single
// Prometheus registry shared by every component that records counters
// (the Pipeline Engine's internal/engine.Metrics, the Swap Decoder, the
// Indexer Pipeline), served over one /metrics HTTP endpoint. It plays the
// role the teacher's chainadapter/metrics.ChainMetrics interface plays —
// a single observability seam every subsystem reports through — but
// backed by the real prometheus/client_golang registry/collector model
// instead of a hand-rolled aggregator and text exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a prometheus.Registry and the shared collectors that
// don't belong to any one component package (C7 Swap Decoder, C9 Indexer
// Pipeline). internal/engine registers its own collectors onto the same
// underlying *prometheus.Registry via engine.NewMetricsOn.
type Registry struct {
	reg *prometheus.Registry

	unexpectedTokenCount prometheus.Counter
	dustDropped          prometheus.Counter
	txReceived           prometheus.Counter
	publishDropped       prometheus.Counter
}

// New builds a Registry with its collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		unexpectedTokenCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline_indexer",
			Name:      "unexpected_token_count_total",
			Help:      "Swap instructions dropped for not having exactly two token deltas.",
		}),
		dustDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline_indexer",
			Name:      "dust_dropped_total",
			Help:      "Swaps dropped for falling below the configured dust threshold.",
		}),
		txReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline_indexer",
			Name:      "transactions_received_total",
			Help:      "Raw transactions received from the indexer source.",
		}),
		publishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline_indexer",
			Name:      "publish_dropped_total",
			Help:      "Price updates dropped for exceeding the publish soft limit.",
		}),
	}
	reg.MustRegister(r.unexpectedTokenCount, r.dustDropped, r.txReceived, r.publishDropped)
	return r
}

// Prometheus exposes the underlying registry so other packages (notably
// internal/engine via NewMetricsOn) can register their own collectors
// onto the same process-wide registry.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SwapMetrics adapts Registry to internal/swap.Metrics.
func (r *Registry) SwapMetrics() *swapMetrics { return &swapMetrics{r} }

type swapMetrics struct{ r *Registry }

func (m *swapMetrics) IncUnexpectedTokenCount() { m.r.unexpectedTokenCount.Inc() }
func (m *swapMetrics) IncDustDropped()          { m.r.dustDropped.Inc() }

// IndexerMetrics adapts Registry to internal/indexer.Metrics.
func (r *Registry) IndexerMetrics() *indexerMetrics { return &indexerMetrics{r} }

type indexerMetrics struct{ r *Registry }

func (m *indexerMetrics) IncTransactionsReceived() { m.r.txReceived.Inc() }
func (m *indexerMetrics) IncPublishDropped()       { m.r.publishDropped.Inc() }
