// Package scope keeps at most one ambient transaction per logical call chain.
//
// The first scope requested on a chain owns the transaction; scopes requested further down the
// same chain join it. Only the owner commits, and only once every joiner has completed. Any
// participant can mark the nest failed, which turns the owner's completion into a rollback.
//
//	ctx, h, err := manager.RequestScope(ctx, scope.Request{Begin: begin})
//	if err != nil {
//	    return err
//	}
//	defer h.Dispose(ctx)
//	...
//	return h.Complete(ctx)
package scope

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/pkg/errors"
)

// Role of a Handle within its nest.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleJoiner Role = "joiner"
)

// Request describes how to start the ambient transaction when none exists yet.
type Request struct {
	Begin func(ctx context.Context) (txn.Transaction, error)
	// OnCommit runs after the owner committed, with the bookmarks the commit produced.
	OnCommit func(ctx context.Context, produced bookmark.Set)
}

// Observer is notified of scope activity.
type Observer interface {
	ScopeRequested(role Role)
	EntryOpened(tx txn.Transaction)
	// EntryClosed is called once the ambient transaction left Open and was released.
	EntryClosed(tx txn.Transaction)
}

// entry is the ambient registration of one Key.
type entry struct {
	mu  sync.Mutex
	key Key
	tx  txn.Transaction

	// depth counts the handles not yet completed or disposed, owner included.
	depth    int
	failed   bool
	cause    error
	closed   bool
	onCommit func(ctx context.Context, produced bookmark.Set)
}

// Manager - ambient scope registry. Distinct keys never contend; operations on one key are
// serialized by its entry.
type Manager struct {
	entries sync.Map
	// ambient holds the ids of the transactions registered in entries.
	ambient  sync.Map
	observer Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver - register an observer (metrics).
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		m.observer = observer
	}
}

// NewManager - scope manager constructor.
func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RequestScope joins the ambient transaction of ctx, or starts one through req.Begin when
// there is none. The returned context carries the scope key and must be used for nested calls.
func (m *Manager) RequestScope(ctx context.Context, req Request) (context.Context, *Handle, error) {
	ctx, key := ensureKey(ctx)
	h, err := m.request(ctx, key, req)

	return ctx, h, err
}

// RequestNewScope always starts a new transaction, owned by a fresh key. The ambient
// transaction of ctx, if any, is left untouched and becomes visible again to ctx.
func (m *Manager) RequestNewScope(ctx context.Context, req Request) (context.Context, *Handle, error) {
	key := NewKey()
	ctx = WithKey(ctx, key)
	h, err := m.request(ctx, key, req)

	return ctx, h, err
}

// Suppress returns a context with no ambient transaction: scopes requested with it start their own.
func (m *Manager) Suppress(ctx context.Context) context.Context {
	return WithKey(ctx, NewKey())
}

func (m *Manager) request(ctx context.Context, key Key, req Request) (*Handle, error) {
	for {
		fresh := &entry{key: key}
		fresh.mu.Lock()

		v, loaded := m.entries.LoadOrStore(key, fresh)
		if !loaded {
			return m.open(ctx, fresh, req)
		}
		fresh.mu.Unlock()

		e := v.(*entry)
		e.mu.Lock()
		if e.closed || !e.tx.IsOpen() {
			// left Open behind the manager's back: drop it and start over
			m.closeLocked(ctx, e)
			e.mu.Unlock()
			continue
		}
		e.depth++
		depth := e.depth
		e.mu.Unlock()

		m.notifyRequested(RoleJoiner)
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("joined ambient transaction %s at depth %d", e.tx.Id(), depth))

		return &Handle{manager: m, entry: e, role: RoleJoiner}, nil
	}
}

// open begins the transaction of an entry stored locked by request.
func (m *Manager) open(ctx context.Context, e *entry, req Request) (h *Handle, err error) {
	opened := false
	defer func() {
		if !opened {
			e.closed = true
			m.entries.CompareAndDelete(e.key, e)
		}
		e.mu.Unlock()
	}()

	if req.Begin == nil {
		return nil, errorx.NewTransactionError(errorx.KindTransactionBeginFailed, "no begin function in scope request")
	}

	tx, err := req.Begin(ctx)
	if err != nil {
		if errorx.KindOf(err) == errorx.KindUnknown {
			err = errorx.NewTransactionErrorWrapper(errorx.KindTransactionBeginFailed, err, "error starting ambient transaction")
		}
		return nil, err
	}
	if tx == nil {
		return nil, errorx.NewTransactionError(errorx.KindTransactionBeginFailed, "begin returned no transaction")
	}

	e.tx = tx
	e.depth = 1
	e.onCommit = req.OnCommit
	opened = true
	m.ambient.Store(tx.Id(), struct{}{})

	m.notifyRequested(RoleOwner)
	if m.observer != nil {
		m.observer.EntryOpened(tx)
	}
	logx.GetLogger().LogDebug(logx.WithTransactionId(ctx, tx.Id().String()), "ambient transaction started")

	return &Handle{manager: m, entry: e, role: RoleOwner}, nil
}

// closeLocked unregisters e and releases its transaction, rolling it back if still Open.
func (m *Manager) closeLocked(ctx context.Context, e *entry) {
	if e.closed {
		return
	}
	e.closed = true
	m.entries.CompareAndDelete(e.key, e)
	m.ambient.Delete(e.tx.Id())

	e.tx.Release(ctx)
	if m.observer != nil {
		m.observer.EntryClosed(e.tx)
	}
}

func (m *Manager) notifyRequested(role Role) {
	if m.observer != nil {
		m.observer.ScopeRequested(role)
	}
}

func (m *Manager) lookup(ctx context.Context) (*entry, bool) {
	key, ok := KeyFrom(ctx)
	if !ok {
		return nil, false
	}

	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false
	}

	return v.(*entry), true
}

// Current returns the ambient transaction of ctx, if any, with the restrictions of a joiner:
// it cannot be committed, cancelled or released, and a Rollback marks the nest failed.
func (m *Manager) Current(ctx context.Context) (txn.Transaction, bool) {
	e, ok := m.lookup(ctx)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false
	}

	return &joinedTx{Transaction: e.tx, handle: &Handle{manager: m, entry: e, role: RoleJoiner, done: true}}, true
}

// IsAmbient reports whether the transaction id is owned by a scope of this manager.
func (m *Manager) IsAmbient(id uuid.UUID) bool {
	_, ok := m.ambient.Load(id)
	return ok
}

// Depth returns the number of open scopes on the ambient transaction of ctx.
func (m *Manager) Depth(ctx context.Context) int {
	e, ok := m.lookup(ctx)
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0
	}

	return e.depth
}

// Len returns the number of registered ambient transactions.
func (m *Manager) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Clear rolls back and drops every ambient transaction. Handles still held become no-ops.
func (m *Manager) Clear(ctx context.Context) {
	m.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.closed && e.tx != nil {
			logx.GetLogger().LogWarning(logx.WithTransactionId(ctx, e.tx.Id().String()),
				fmt.Sprintf("rolling back ambient transaction with %d open scopes", e.depth))
			m.closeLocked(ctx, e)
		}
		e.mu.Unlock()

		return true
	})
}

// completeOwnerLocked commits or rolls back the nest on completion of its owner.
func (m *Manager) completeOwnerLocked(ctx context.Context, e *entry) (bookmark.Set, error) {
	ctx = logx.WithTransactionId(ctx, e.tx.Id().String())

	switch {
	case e.depth > 1:
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("owning scope completed with %d nested scopes open, rolling back", e.depth-1))
		m.closeLocked(ctx, e)
		return bookmark.Set{}, errorx.NewTransactionError(errorx.KindAmbientScopeMismatch,
			"owning scope of transaction %s completed before %d nested scopes", e.tx.Id(), e.depth-1)

	case e.failed:
		e.tx.Rollback(ctx)
		m.closeLocked(ctx, e)
		return bookmark.Set{}, errorx.NewTransactionErrorWrapper(errorx.KindTransactionAborted, e.cause,
			"transaction %s rolled back", e.tx.Id())

	case !e.tx.IsOpen():
		state := e.tx.State()
		m.closeLocked(ctx, e)
		if state == txn.StateCommitted {
			return bookmark.Set{}, nil
		}
		return bookmark.Set{}, errorx.NewTransactionError(errorx.KindTransactionAborted,
			"transaction %s is %s", e.tx.Id(), state)
	}

	produced, err := e.tx.Commit(ctx)
	m.closeLocked(ctx, e)

	return produced, err
}

var errDisposed = errors.New("nested scope disposed without completion")
