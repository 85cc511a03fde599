package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the transaction coordination metrics.
type Registry struct {
	// Transaction Metrics
	TransactionsBegun    *prometheus.CounterVec
	TransactionsFinished *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec

	// Scope Metrics
	AmbientScopesActive prometheus.Gauge
	ScopeRequestsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initTransactionMetrics()
	r.initScopeMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
