//go:build integration

package coordinator_test

import (
	"context"
	"testing"

	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/coordinator"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/marcodd23/go-graph-tx/test/testcontainer/testcontainer_neo4j"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countMovies(t *testing.T, c *coordinator.Coordinator, title string) int64 {
	t.Helper()

	var count int64
	err := c.Execute(context.Background(), txn.AccessModeRead, func(ctx context.Context, tx txn.Transaction) error {
		res, err := tx.Run(ctx, txn.NewStatement("MATCH (m:Movie {title: $title}) RETURN count(m) AS n", map[string]any{"title": title}))
		if err != nil {
			return err
		}
		switch n := res.Value(0, "n").(type) {
		case int64:
			count = n
		case float64:
			count = int64(n)
		}
		return nil
	})
	require.NoError(t, err)

	return count
}

func TestIntegrationTransports(t *testing.T) {
	ctx := context.Background()
	container := testcontainer_neo4j.StartNeo4jContainer(ctx, t)

	for _, transport := range []string{configmgr.TransportSession, configmgr.TransportResource} {
		t.Run(transport, func(t *testing.T) {
			c, err := coordinator.NewFromConfig(ctx, container.GraphConfig(transport))
			require.NoError(t, err)
			defer c.Close(ctx)

			title := "Heat-" + transport

			t.Run("nested scopes commit once", func(t *testing.T) {
				scopeCtx, outer, err := c.RequestScope(ctx, txn.AccessModeWrite)
				require.NoError(t, err)
				defer outer.Dispose(scopeCtx)

				err = c.Execute(scopeCtx, txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
					_, err := tx.Run(ctx, txn.NewStatement("CREATE (:Movie {title: $title})", map[string]any{"title": title}))
					return err
				})
				require.NoError(t, err)
				require.NoError(t, c.Complete(scopeCtx, outer))

				assert.Equal(t, int64(1), countMovies(t, c, title))
				if transport == configmgr.TransportSession {
					assert.False(t, c.Bookmarks().IsEmpty())
				}
			})

			t.Run("inner failure rolls back", func(t *testing.T) {
				scopeCtx, outer, err := c.RequestScope(ctx, txn.AccessModeWrite)
				require.NoError(t, err)
				defer outer.Dispose(scopeCtx)

				_, err = outer.Transaction().Run(scopeCtx, txn.NewStatement("CREATE (:Movie {title: $title})", map[string]any{"title": title}))
				require.NoError(t, err)

				err = c.Execute(scopeCtx, txn.AccessModeWrite, func(ctx context.Context, tx txn.Transaction) error {
					return errors.New("business rule violated")
				})
				require.Error(t, err)

				err = c.Complete(scopeCtx, outer)
				assert.True(t, errorx.IsKind(err, errorx.KindTransactionAborted))
				assert.Equal(t, int64(1), countMovies(t, c, title))
			})

			t.Run("commit by reference", func(t *testing.T) {
				scopeCtx, h, err := c.BeginNew(ctx, txn.AccessModeWrite)
				require.NoError(t, err)
				_, err = h.Transaction().Run(scopeCtx, txn.NewStatement("CREATE (:Movie {title: $title})", map[string]any{"title": title + "-ref"}))
				require.NoError(t, err)

				ref := h.Transaction().Reference()
				_, err = c.CommitByReference(scopeCtx, ref)
				require.NoError(t, err)
				require.NoError(t, h.Complete(scopeCtx))

				assert.Equal(t, int64(1), countMovies(t, c, title+"-ref"))
			})
		})
	}
}
