package metrics

import (
	"time"

	"github.com/marcodd23/go-graph-tx/pkg/scope"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

// RecordBegin records a transaction begun
func (r *Registry) RecordBegin(transport txn.TransportKind, mode txn.AccessMode) {
	r.TransactionsBegun.WithLabelValues(string(transport), mode.String()).Inc()
}

// RecordFinish records a transaction that left the Open state
func (r *Registry) RecordFinish(transport txn.TransportKind, state txn.State, duration time.Duration) {
	r.TransactionsFinished.WithLabelValues(string(transport), state.String()).Inc()
	r.TransactionDuration.WithLabelValues(string(transport), state.String()).Observe(duration.Seconds())
}

// ScopeRequested implements scope.Observer.
func (r *Registry) ScopeRequested(role scope.Role) {
	r.ScopeRequestsTotal.WithLabelValues(string(role)).Inc()
}

// EntryOpened implements scope.Observer.
func (r *Registry) EntryOpened(tx txn.Transaction) {
	r.AmbientScopesActive.Inc()
	r.RecordBegin(tx.Transport(), tx.AccessMode())
}

// EntryClosed implements scope.Observer.
func (r *Registry) EntryClosed(tx txn.Transaction) {
	r.AmbientScopesActive.Dec()
	r.RecordFinish(tx.Transport(), tx.State(), time.Since(tx.StartedAt()))
}

var _ scope.Observer = (*Registry)(nil)
