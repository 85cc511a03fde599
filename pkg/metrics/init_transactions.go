package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransactionMetrics() {
	r.TransactionsBegun = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_transactions_begun_total",
			Help: "Total number of transactions begun",
		},
		[]string{"transport", "mode"}, // session|resource, read|write
	)

	r.TransactionsFinished = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_transactions_finished_total",
			Help: "Total number of transactions that left the Open state",
		},
		[]string{"transport", "state"}, // Committed, RolledBack, Cancelled
	)

	r.TransactionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphtx_transaction_duration_seconds",
			Help:    "Time from begin to release of transactions in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"transport", "state"},
	)
}

func (r *Registry) initScopeMetrics() {
	r.AmbientScopesActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphtx_ambient_scopes_active",
			Help: "Number of ambient transactions currently registered",
		},
	)

	r.ScopeRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_scope_requests_total",
			Help: "Total number of scope requests",
		},
		[]string{"role"}, // owner, joiner
	)
}
