// Package coordinator is the entry point of the library: it owns the transport adapter chosen
// at configuration time, the bookmark tracker and the ambient scope manager.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/metrics"
	"github.com/marcodd23/go-graph-tx/pkg/scope"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/marcodd23/go-graph-tx/pkg/txn/resourcetx"
	"github.com/marcodd23/go-graph-tx/pkg/txn/sessiontx"
	"github.com/marcodd23/go-graph-tx/pkg/txn/sessiontx/neo4jdriver"
	"github.com/pkg/errors"
)

// Coordinator - transaction coordinator.
type Coordinator struct {
	adapter  txn.Adapter
	database string
	tracker  *bookmark.Tracker
	scopes   *scope.Manager
	metrics  *metrics.Registry
	metadata map[string]string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDatabase - the bookmark tracker key. Defaults to "neo4j".
func WithDatabase(database string) Option {
	return func(c *Coordinator) {
		c.database = database
	}
}

func WithTracker(tracker *bookmark.Tracker) Option {
	return func(c *Coordinator) {
		c.tracker = tracker
	}
}

func WithScopeManager(scopes *scope.Manager) Option {
	return func(c *Coordinator) {
		c.scopes = scopes
	}
}

// WithMetrics - record transactions and scopes. Ignored for the scopes when WithScopeManager
// provides a manager built without the registry as observer.
func WithMetrics(registry *metrics.Registry) Option {
	return func(c *Coordinator) {
		c.metrics = registry
	}
}

// WithDefaultMetadata - metadata sent with every transaction, overridable per scope.
func WithDefaultMetadata(metadata map[string]string) Option {
	return func(c *Coordinator) {
		c.metadata = metadata
	}
}

const defaultDatabase = "neo4j"

// New - coordinator constructor.
func New(adapter txn.Adapter, opts ...Option) *Coordinator {
	c := &Coordinator{adapter: adapter, database: defaultDatabase}
	for _, opt := range opts {
		opt(c)
	}

	if c.tracker == nil {
		c.tracker = bookmark.NewTracker()
	}
	if c.scopes == nil {
		var scopeOpts []scope.Option
		if c.metrics != nil {
			scopeOpts = append(scopeOpts, scope.WithObserver(c.metrics))
		}
		c.scopes = scope.NewManager(scopeOpts...)
	}

	return c
}

// NewFromConfig builds the adapter of the configured transport and the coordinator over it.
func NewFromConfig(ctx context.Context, cfg *configmgr.GraphConfig, opts ...Option) (*Coordinator, error) {
	if err := configmgr.ValidateGraphConfig(cfg); err != nil {
		return nil, err
	}

	var adapter txn.Adapter
	switch cfg.Transport {
	case configmgr.TransportSession:
		driver, err := neo4jdriver.New(ctx, neo4jdriver.ConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		adapter = sessiontx.NewAdapter(driver, sessiontx.WithDatabase(cfg.Database))
	case configmgr.TransportResource:
		adapter = resourcetx.NewAdapter(resourcetx.NewClient(resourcetx.ClientConfigFrom(cfg)))
	default:
		return nil, errorx.NewGeneralError("unsupported graph transport %q", cfg.Transport)
	}

	logx.GetLogger().LogInfo(ctx, fmt.Sprintf("graph transport: %s, database: %s", cfg.Transport, cfg.Database))

	return New(adapter, append([]Option{WithDatabase(cfg.Database)}, opts...)...), nil
}

type scopeOptions struct {
	metadata map[string]string
}

// ScopeOption configures the transaction a scope begins.
type ScopeOption func(*scopeOptions)

// WithMetadata - metadata of the transaction, merged over the default metadata. Ignored when
// the scope joins an ambient transaction.
func WithMetadata(metadata map[string]string) ScopeOption {
	return func(o *scopeOptions) {
		o.metadata = metadata
	}
}

func (c *Coordinator) request(mode txn.AccessMode, opts []ScopeOption) scope.Request {
	var so scopeOptions
	for _, opt := range opts {
		opt(&so)
	}

	metadata := make(map[string]string, len(c.metadata)+len(so.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	for k, v := range so.metadata {
		metadata[k] = v
	}

	var seeded bookmark.Set

	return scope.Request{
		Begin: func(ctx context.Context) (txn.Transaction, error) {
			seeded = c.tracker.Current(c.database)
			return c.adapter.Begin(ctx, txn.BeginOptions{AccessMode: mode, Bookmarks: seeded, Metadata: metadata})
		},
		OnCommit: func(ctx context.Context, produced bookmark.Set) {
			c.tracker.Update(c.database, seeded, produced)
		},
	}
}

// RequestScope joins the ambient transaction of ctx or begins one, seeded with the current
// bookmarks. Nested calls must use the returned context.
func (c *Coordinator) RequestScope(ctx context.Context, mode txn.AccessMode, opts ...ScopeOption) (context.Context, *scope.Handle, error) {
	ctx, h, err := c.scopes.RequestScope(ctx, c.request(mode, opts))
	if err != nil {
		return ctx, nil, err
	}

	if h.Role() == scope.RoleJoiner && mode == txn.AccessModeWrite && h.Transaction().AccessMode() == txn.AccessModeRead {
		logx.GetLogger().LogWarning(logx.WithTransactionId(ctx, h.Transaction().Id().String()),
			"write scope joined a read ambient transaction")
	}

	return ctx, h, nil
}

// BeginNew begins an independent transaction regardless of the ambient one.
func (c *Coordinator) BeginNew(ctx context.Context, mode txn.AccessMode, opts ...ScopeOption) (context.Context, *scope.Handle, error) {
	return c.scopes.RequestNewScope(ctx, c.request(mode, opts))
}

// Suppress returns a context in which no ambient transaction is visible.
func (c *Coordinator) Suppress(ctx context.Context) context.Context {
	return c.scopes.Suppress(ctx)
}

// Complete completes h; see scope.Handle.Complete.
func (c *Coordinator) Complete(ctx context.Context, h *scope.Handle) error {
	return h.Complete(ctx)
}

// Current returns the ambient transaction of ctx, if any; see scope.Manager.Current.
func (c *Coordinator) Current(ctx context.Context) (txn.Transaction, bool) {
	return c.scopes.Current(ctx)
}

// Execute runs task inside a scope: the scope is completed when task succeeds and marked failed
// when it returns an error or panics.
func (c *Coordinator) Execute(ctx context.Context, mode txn.AccessMode, task func(ctx context.Context, tx txn.Transaction) error, opts ...ScopeOption) error {
	ctx, h, err := c.RequestScope(ctx, mode, opts...)
	if err != nil {
		return err
	}

	defer h.Dispose(ctx)
	defer func() {
		if r := recover(); r != nil {
			h.MarkFailed(fmt.Errorf("panic in transactional task: %v", r))
			panic(r)
		}
	}()

	if err = task(ctx, h.Transaction()); err != nil {
		h.MarkFailed(err)
		return errors.Wrap(err, "error executing transactional task")
	}

	return h.Complete(ctx)
}

// Reattach rebuilds a Transaction from a Reference handed over by another part of the system.
func (c *Coordinator) Reattach(ref txn.Reference) (txn.Transaction, error) {
	return c.adapter.Reattach(ref)
}

// CommitByReference commits the transaction identified by ref outside any scope and records
// the bookmarks it produced in place of the ones it was seeded with. When ref is the ambient
// transaction of a scope, its owner's completion then finds it Committed and succeeds.
func (c *Coordinator) CommitByReference(ctx context.Context, ref txn.Reference) (bookmark.Set, error) {
	tx, err := c.adapter.Reattach(ref)
	if err != nil {
		return bookmark.Set{}, err
	}

	produced, err := tx.Commit(ctx)
	c.recordFinish(tx)
	if err != nil {
		return bookmark.Set{}, err
	}

	c.tracker.Update(c.database, txn.SeedOf(tx), produced)

	return produced, nil
}

// RollbackByReference rolls back the transaction identified by ref outside any scope.
func (c *Coordinator) RollbackByReference(ctx context.Context, ref txn.Reference) error {
	tx, err := c.adapter.Reattach(ref)
	if err != nil {
		return err
	}

	tx.Rollback(ctx)
	c.recordFinish(tx)

	return nil
}

// recordFinish - ambient transactions are recorded by the scope observer when their entry closes.
func (c *Coordinator) recordFinish(tx txn.Transaction) {
	if c.metrics != nil && !c.scopes.IsAmbient(tx.Id()) {
		c.metrics.RecordFinish(tx.Transport(), tx.State(), time.Since(tx.StartedAt()))
	}
}

// Bookmarks returns the bookmarks the next transaction will be seeded with.
func (c *Coordinator) Bookmarks() bookmark.Set {
	return c.tracker.Current(c.database)
}

func (c *Coordinator) Transport() txn.TransportKind {
	return c.adapter.Kind()
}

// Scopes exposes the scope manager, e.g. for Depth in diagnostics.
func (c *Coordinator) Scopes() *scope.Manager {
	return c.scopes
}

// Close rolls back every ambient transaction still registered, then closes the adapter.
func (c *Coordinator) Close(ctx context.Context) error {
	c.scopes.Clear(ctx)

	return errors.WithStack(c.adapter.Close(ctx))
}
