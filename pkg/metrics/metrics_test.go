package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/scope"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{}

func (nopHandle) Run(context.Context, txn.Statement) (*txn.Result, error) { return &txn.Result{}, nil }
func (nopHandle) KeepAlive(context.Context) error                         { return nil }
func (nopHandle) Commit(context.Context) (bookmark.Set, error)            { return bookmark.NewSet("bm"), nil }
func (nopHandle) Rollback(context.Context) error                          { return nil }
func (nopHandle) Release(context.Context) error                           { return nil }

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var metric dto.Metric
	require.NoError(t, c.Write(&metric))

	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	var metric dto.Metric
	require.NoError(t, g.Write(&metric))

	return metric.GetGauge().GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	assert.NotNil(t, r.TransactionsBegun)
	assert.NotNil(t, r.TransactionsFinished)
	assert.NotNil(t, r.TransactionDuration)
	assert.NotNil(t, r.AmbientScopesActive)
	assert.NotNil(t, r.ScopeRequestsTotal)
	assert.NotNil(t, r.GetPrometheusRegistry())
}

func TestRecordBeginAndFinish(t *testing.T) {
	r := NewRegistry()

	r.RecordBegin(txn.TransportSession, txn.AccessModeRead)
	r.RecordBegin(txn.TransportSession, txn.AccessModeRead)
	r.RecordFinish(txn.TransportSession, txn.StateCommitted, 20*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, r.TransactionsBegun.WithLabelValues("session", "read")))
	assert.Equal(t, 1.0, counterValue(t, r.TransactionsFinished.WithLabelValues("session", "Committed")))

	histogram, err := r.TransactionDuration.GetMetricWithLabelValues("session", "Committed")
	require.NoError(t, err)
	var metric dto.Metric
	require.NoError(t, histogram.(prometheus.Histogram).Write(&metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestObservesScopeManager(t *testing.T) {
	r := NewRegistry()
	m := scope.NewManager(scope.WithObserver(r))
	begin := func(ctx context.Context) (txn.Transaction, error) {
		return txn.New(nopHandle{}, txn.Info{Transport: txn.TransportResource, AccessMode: txn.AccessModeWrite}), nil
	}

	ctx, outer, err := m.RequestScope(context.Background(), scope.Request{Begin: begin})
	require.NoError(t, err)
	ctx, inner, err := m.RequestScope(ctx, scope.Request{Begin: begin})
	require.NoError(t, err)
	assert.Equal(t, 1.0, gaugeValue(t, r.AmbientScopesActive))

	require.NoError(t, inner.Complete(ctx))
	require.NoError(t, outer.Complete(ctx))

	assert.Equal(t, 0.0, gaugeValue(t, r.AmbientScopesActive))
	assert.Equal(t, 1.0, counterValue(t, r.ScopeRequestsTotal.WithLabelValues("owner")))
	assert.Equal(t, 1.0, counterValue(t, r.ScopeRequestsTotal.WithLabelValues("joiner")))
	assert.Equal(t, 1.0, counterValue(t, r.TransactionsBegun.WithLabelValues("resource", "write")))
	assert.Equal(t, 1.0, counterValue(t, r.TransactionsFinished.WithLabelValues("resource", "Committed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordBegin(txn.TransportSession, txn.AccessModeWrite)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `graphtx_transactions_begun_total{mode="write",transport="session"} 1`))
}
