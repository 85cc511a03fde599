package coordinator_test

import (
	"context"
	"testing"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/coordinator"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/metrics"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/marcodd23/go-graph-tx/pkg/txn/resourcetx"
	"github.com/marcodd23/go-graph-tx/pkg/txn/sessiontx"
	"github.com/marcodd23/go-graph-tx/test/fakebolt"
	"github.com/marcodd23/go-graph-tx/test/fakegraph"
	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionCoordinator(opts ...coordinator.Option) (*coordinator.Coordinator, *fakebolt.Driver) {
	driver := fakebolt.NewDriver()
	adapter := sessiontx.NewAdapter(driver, sessiontx.WithDatabase("movies"))

	return coordinator.New(adapter, append([]coordinator.Option{coordinator.WithDatabase("movies")}, opts...)...), driver
}

func TestWriteWithoutSeedCommitsWithBookmarks(t *testing.T) {
	c, driver := newSessionCoordinator()
	assert.Equal(t, txn.TransportSession, c.Transport())
	assert.True(t, c.Bookmarks().IsEmpty())

	ctx, h, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer h.Dispose(ctx)

	tx := h.Transaction()
	_, err = tx.Run(ctx, txn.NewStatement("CREATE (:Person {name: $name})", map[string]any{"name": "Ada"}))
	require.NoError(t, err)
	require.NoError(t, c.Complete(ctx, h))

	assert.Equal(t, txn.StateCommitted, tx.State())
	assert.False(t, c.Bookmarks().IsEmpty())
	assert.True(t, driver.Sessions()[0].Config.Bookmarks.IsEmpty())
	assert.Equal(t, 1, driver.Count(fakebolt.EventCommit))
}

func TestBookmarksSeedTheNextTransaction(t *testing.T) {
	c, driver := newSessionCoordinator()

	require.NoError(t, c.Execute(context.Background(), txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		_, err := tx.Run(ctx, txn.NewStatement("CREATE (:Movie)", nil))
		return err
	}))
	first := c.Bookmarks()
	require.Equal(t, 1, first.Len())

	require.NoError(t, c.Execute(context.Background(), txn.AccessModeRead, func(ctx context.Context, tx txn.Transaction) error {
		_, err := tx.Run(ctx, txn.NewStatement("MATCH (m:Movie) RETURN m", nil))
		return err
	}))
	second := c.Bookmarks()

	sessions := driver.Sessions()
	require.Len(t, sessions, 2)
	assert.True(t, first.Equal(sessions[1].Config.Bookmarks))
	assert.Equal(t, txn.AccessModeRead, sessions[1].Config.AccessMode)

	// the fresher set replaces the seed
	assert.False(t, second.Contains(first.Tokens()[0]))
	assert.True(t, driver.CausallyAfter(second.Tokens()[0], first.Tokens()[0]))
}

func TestNestedScopesCommitOnce(t *testing.T) {
	c, driver := newSessionCoordinator()

	ctx, outer, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer outer.Dispose(ctx)

	innerCtx, inner, err := c.RequestScope(ctx, txn.AccessModeWrite)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Scopes().Depth(innerCtx))

	current, ok := c.Current(innerCtx)
	require.True(t, ok)
	assert.Equal(t, outer.Transaction().Id(), current.Id())

	require.NoError(t, c.Complete(innerCtx, inner))
	require.NoError(t, c.Complete(ctx, outer))

	assert.Len(t, driver.Sessions(), 1)
	assert.Equal(t, 1, driver.Count(fakebolt.EventCommit))
	assert.Zero(t, driver.OpenSessions())
}

func TestInnerFailureRollsBackOnce(t *testing.T) {
	c, driver := newSessionCoordinator()

	ctx, outer, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer outer.Dispose(ctx)

	taskErr := errors.New("validation failed")
	err = c.Execute(ctx, txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		return taskErr
	})
	assert.ErrorIs(t, err, taskErr)

	err = c.Complete(ctx, outer)
	assert.True(t, errorx.IsKind(err, errorx.KindTransactionAborted))
	assert.Zero(t, driver.Count(fakebolt.EventCommit))
	assert.Equal(t, 1, driver.Count(fakebolt.EventRollback))
	assert.True(t, c.Bookmarks().IsEmpty())
}

func TestExecuteRollsBackOnPanic(t *testing.T) {
	c, driver := newSessionCoordinator()

	assert.Panics(t, func() {
		_ = c.Execute(context.Background(), txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
			panic("boom")
		})
	})

	assert.Zero(t, driver.Count(fakebolt.EventCommit))
	assert.Equal(t, 1, driver.Count(fakebolt.EventRollback))
	assert.Zero(t, driver.OpenSessions())
	assert.Zero(t, c.Scopes().Len())
}

func TestBeginNewAndSuppress(t *testing.T) {
	c, driver := newSessionCoordinator()

	ctx, outer, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer outer.Dispose(ctx)

	newCtx, independent, err := c.BeginNew(ctx, txn.AccessModeWrite)
	require.NoError(t, err)
	assert.True(t, independent.IsOwner())
	require.NoError(t, c.Complete(newCtx, independent))

	suppressed := c.Suppress(ctx)
	_, ok := c.Current(suppressed)
	assert.False(t, ok)
	require.NoError(t, c.Execute(suppressed, txn.AccessModeRead, func(ctx context.Context, tx txn.Transaction) error {
		assert.NotEqual(t, outer.Transaction().Id(), tx.Id())
		return nil
	}))

	assert.True(t, outer.Transaction().IsOpen())
	require.NoError(t, c.Complete(ctx, outer))
	assert.Len(t, driver.Sessions(), 3)
	assert.Equal(t, 3, driver.Count(fakebolt.EventCommit))
}

func TestBeginFailureIsSurfaced(t *testing.T) {
	c, driver := newSessionCoordinator()
	driver.FailNewSession = errors.New("connection refused")

	_, h, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	assert.Nil(t, h)
	assert.True(t, errorx.IsKind(err, errorx.KindTransactionBeginFailed))
	assert.Zero(t, c.Scopes().Len())
}

func TestReattachAndCommitByReference(t *testing.T) {
	c, driver := newSessionCoordinator()
	ctx := context.Background()

	ctx, h, err := c.RequestScope(ctx, txn.AccessModeWrite)
	require.NoError(t, err)
	ref := h.Transaction().Reference()

	reattached, err := c.Reattach(ref)
	require.NoError(t, err)
	assert.Same(t, h.Transaction(), reattached)

	produced, err := c.CommitByReference(ctx, ref)
	require.NoError(t, err)
	assert.False(t, produced.IsEmpty())
	assert.True(t, c.Bookmarks().ContainsAll(produced))

	events := driver.Events()
	assert.Equal(t, []string{fakebolt.EventCommit, fakebolt.EventClose, fakebolt.EventSessionClose}, events[len(events)-3:])

	_, err = c.CommitByReference(ctx, ref)
	assert.True(t, errorx.IsKind(err, errorx.KindTransactionNotFound))

	h.Dispose(ctx)
	assert.Equal(t, 1, driver.Count(fakebolt.EventCommit))
}

func TestOwnerCompletesAfterCommitByReference(t *testing.T) {
	registry := metrics.NewRegistry()
	c, driver := newSessionCoordinator(coordinator.WithMetrics(registry))

	ctx, h, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer h.Dispose(ctx)
	_, err = h.Transaction().Run(ctx, txn.NewStatement("CREATE (:Movie)", nil))
	require.NoError(t, err)

	produced, err := c.CommitByReference(ctx, h.Transaction().Reference())
	require.NoError(t, err)
	assert.Equal(t, txn.StateCommitted, h.Transaction().State())

	require.NoError(t, c.Complete(ctx, h))
	assert.Equal(t, txn.StateCommitted, h.Transaction().State())
	assert.Equal(t, 1, driver.Count(fakebolt.EventCommit))
	assert.Zero(t, driver.OpenSessions())
	assert.Equal(t, produced.Tokens(), c.Bookmarks().Tokens())
	assert.Zero(t, c.Scopes().Len())

	var finished dto.Metric
	require.NoError(t, registry.TransactionsFinished.WithLabelValues(string(txn.TransportSession), txn.StateCommitted.String()).Write(&finished))
	assert.Equal(t, float64(1), finished.GetCounter().GetValue())
}

func TestCommitByReferenceReplacesTheSeed(t *testing.T) {
	c, _ := newSessionCoordinator()
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		return nil
	}))
	seed := c.Bookmarks()
	require.Equal(t, 1, seed.Len())

	ctx, h, err := c.BeginNew(ctx, txn.AccessModeWrite)
	require.NoError(t, err)
	defer h.Dispose(ctx)
	assert.Equal(t, seed.Tokens(), txn.SeedOf(h.Transaction()).Tokens())

	produced, err := c.CommitByReference(ctx, h.Transaction().Reference())
	require.NoError(t, err)
	require.Equal(t, 1, produced.Len())

	assert.Equal(t, produced.Tokens(), c.Bookmarks().Tokens())
	assert.False(t, c.Bookmarks().Contains(seed.Tokens()[0]))
}

func TestCurrentCannotEndTheAmbientTransaction(t *testing.T) {
	c, driver := newSessionCoordinator()

	ctx, h, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)
	defer h.Dispose(ctx)

	current, ok := c.Current(ctx)
	require.True(t, ok)

	_, err = current.Commit(ctx)
	assert.True(t, errorx.IsKind(err, errorx.KindAmbientScopeMismatch))
	current.Cancel()
	current.Release(ctx)
	assert.True(t, h.Transaction().IsOpen())
	assert.Zero(t, driver.Count(fakebolt.EventCommit))

	current.Rollback(ctx)
	err = c.Complete(ctx, h)
	assert.True(t, errorx.IsKind(err, errorx.KindTransactionAborted))
	assert.Zero(t, driver.Count(fakebolt.EventCommit))
	assert.Equal(t, 1, driver.Count(fakebolt.EventRollback))
}

func TestMetricsAreRecorded(t *testing.T) {
	registry := metrics.NewRegistry()
	c, _ := newSessionCoordinator(coordinator.WithMetrics(registry))

	require.NoError(t, c.Execute(context.Background(), txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		return nil
	}))

	families, err := registry.GetPrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["graphtx_transactions_begun_total"])
	assert.True(t, names["graphtx_transactions_finished_total"])
	assert.True(t, names["graphtx_scope_requests_total"])
}

func TestCloseRollsBackOpenScopes(t *testing.T) {
	c, driver := newSessionCoordinator()

	_, _, err := c.RequestScope(context.Background(), txn.AccessModeWrite)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, driver.Count(fakebolt.EventRollback))
	assert.Zero(t, driver.OpenSessions())
	assert.True(t, driver.Closed())
}

func TestResourceTransportScopes(t *testing.T) {
	server := fakegraph.Start(t)
	client := resourcetx.NewClient(resourcetx.ClientConfig{BaseUrl: server.URL, Database: "neo4j"})
	c := coordinator.New(resourcetx.NewAdapter(client),
		coordinator.WithDefaultMetadata(map[string]string{"X-Client": "go-graph-tx", "X-Tenant": "default"}))

	var ref txn.Reference
	err := c.Execute(context.Background(), txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		ref = tx.Reference()
		_, err := tx.Run(ctx, txn.NewStatement("CREATE (:Movie {title: 'Heat'})", nil))
		return err
	}, coordinator.WithMetadata(map[string]string{"X-Tenant": "acme"}))
	require.NoError(t, err)

	serverTx, ok := server.Tx(ref.ResourceId)
	require.True(t, ok)
	assert.True(t, serverTx.Committed)
	assert.Equal(t, []string{"CREATE (:Movie {title: 'Heat'})"}, serverTx.Statements)
	assert.True(t, c.Bookmarks().IsEmpty())

	for _, call := range server.Calls() {
		assert.Equal(t, "go-graph-tx", call.Headers["X-Client"])
		assert.Equal(t, "acme", call.Headers["X-Tenant"])
	}
}

func TestResourceRollbackByReference(t *testing.T) {
	server := fakegraph.Start(t)
	c := coordinator.New(resourcetx.NewAdapter(resourcetx.NewClient(resourcetx.ClientConfig{BaseUrl: server.URL, Database: "neo4j"})))
	ctx := context.Background()

	ctx, h, err := c.RequestScope(ctx, txn.AccessModeWrite)
	require.NoError(t, err)
	ref := h.Transaction().Reference()

	require.NoError(t, c.RollbackByReference(ctx, ref))
	serverTx, _ := server.Tx(ref.ResourceId)
	assert.True(t, serverTx.RolledBack)
	assert.Equal(t, txn.StateRolledBack, h.Transaction().State())

	err = c.Complete(ctx, h)
	assert.True(t, errorx.IsKind(err, errorx.KindTransactionAborted))
	assert.Zero(t, c.Scopes().Len())
}

func TestNewFromConfigResource(t *testing.T) {
	server := fakegraph.Start(t)

	c, err := coordinator.NewFromConfig(context.Background(), &configmgr.GraphConfig{
		Transport: configmgr.TransportResource,
		Database:  "movies",
		Http:      &configmgr.HttpConfig{BaseUrl: server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, txn.TransportResource, c.Transport())

	require.NoError(t, c.Execute(context.Background(), txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
		return nil
	}))
	assert.Equal(t, "/db/movies/tx", server.Calls()[0].Path)
}

func TestNewFromConfigInvalid(t *testing.T) {
	_, err := coordinator.NewFromConfig(context.Background(), &configmgr.GraphConfig{Transport: "smoke-signals"})
	assert.Error(t, err)
}

func TestWithTrackerSharesBookmarks(t *testing.T) {
	tracker := bookmark.NewTracker()
	tracker.Replace("movies", bookmark.NewSet("external"))
	c, driver := newSessionCoordinator(coordinator.WithTracker(tracker))

	require.NoError(t, c.Execute(context.Background(), txn.AccessModeRead, func(ctx context.Context, tx txn.Transaction) error {
		return nil
	}))

	assert.Equal(t, []string{"external"}, driver.Sessions()[0].Config.Bookmarks.Tokens())
	assert.False(t, tracker.Current("movies").Contains("external"))
}
