package resourcetx

import (
	"context"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/pkg/errors"
)

// Environment exposes what is needed to drive a transaction resource by id.
type Environment interface {
	Client() *Client
	ResourceId() string
	Metadata() map[string]string
}

// resourceTx implements txn.Handle and Environment. It holds no connection: every operation is
// an independent request against the resource.
type resourceTx struct {
	adapter    *Adapter
	id         uuid.UUID
	client     *Client
	resourceId string
	metadata   map[string]string
}

func (r *resourceTx) Client() *Client {
	return r.client
}

func (r *resourceTx) ResourceId() string {
	return r.resourceId
}

func (r *resourceTx) Metadata() map[string]string {
	return r.metadata
}

func (r *resourceTx) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	results, err := r.client.Run(ctx, r.resourceId, r.metadata, statement)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &txn.Result{}, nil
	}

	return results[0], nil
}

func (r *resourceTx) KeepAlive(ctx context.Context) error {
	return r.client.KeepAlive(ctx, r.resourceId, r.metadata)
}

// Commit - the transaction resource endpoint produces no bookmarks.
func (r *resourceTx) Commit(ctx context.Context) (bookmark.Set, error) {
	return bookmark.Set{}, r.client.Commit(ctx, r.resourceId, r.metadata)
}

func (r *resourceTx) Rollback(ctx context.Context) error {
	return r.client.Rollback(ctx, r.resourceId, r.metadata)
}

// Release is local only: the transaction is forgotten by the adapter.
func (r *resourceTx) Release(ctx context.Context) error {
	r.adapter.live.Delete(r.id)
	return nil
}

// EnvironmentOf returns the environment of a resource-backed transaction.
func EnvironmentOf(tx txn.Transaction) (Environment, bool) {
	h, ok := txn.HandleOf(tx)
	if !ok {
		return nil, false
	}

	env, ok := h.(Environment)

	return env, ok
}

// DoCommit - commits the transaction resource identified by env.
func DoCommit(ctx context.Context, env Environment) error {
	return errors.WithStack(env.Client().Commit(ctx, env.ResourceId(), env.Metadata()))
}

// DoRollback - rolls back the transaction resource identified by env.
func DoRollback(ctx context.Context, env Environment) error {
	return errors.WithStack(env.Client().Rollback(ctx, env.ResourceId(), env.Metadata()))
}
