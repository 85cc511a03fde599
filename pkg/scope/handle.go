package scope

import (
	"context"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/pkg/errors"
)

// Handle is one participation in an ambient transaction, returned by RequestScope.
// Every Handle must be completed or disposed; Dispose after Complete is a no-op.
type Handle struct {
	manager *Manager
	entry   *entry
	role    Role

	// done is guarded by entry.mu.
	done bool
}

func (h *Handle) Role() Role {
	return h.role
}

func (h *Handle) IsOwner() bool {
	return h.role == RoleOwner
}

func (h *Handle) Key() Key {
	return h.entry.key
}

// Transaction returns the ambient transaction. Joiners get a view that cannot end it: Commit
// fails with AmbientScopeMismatch, Rollback marks the nest failed, Cancel and Release are refused.
func (h *Handle) Transaction() txn.Transaction {
	if h.role == RoleOwner {
		return h.entry.tx
	}

	return &joinedTx{Transaction: h.entry.tx, handle: h}
}

// MarkFailed makes the owner's completion roll the transaction back. The first cause is kept.
func (h *Handle) MarkFailed(cause error) {
	e := h.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	h.markFailedLocked(cause)
}

func (h *Handle) markFailedLocked(cause error) {
	e := h.entry
	if e.failed || e.closed {
		return
	}
	if cause == nil {
		cause = errors.New("scope marked as failed")
	}

	e.failed = true
	e.cause = cause
}

// Complete ends this participation. A joiner only leaves the nest. The owner commits, or
// rolls back when the nest was marked failed, then releases the transaction; completing the
// owner while nested scopes are still open rolls back and fails with AmbientScopeMismatch.
func (h *Handle) Complete(ctx context.Context) error {
	e := h.entry
	e.mu.Lock()

	if h.done {
		e.mu.Unlock()
		return nil
	}
	h.done = true

	if e.closed {
		state := e.tx.State()
		e.mu.Unlock()
		if h.role == RoleOwner && state != txn.StateCommitted {
			return errorx.NewTransactionError(errorx.KindTransactionAborted,
				"transaction %s was %s before its owning scope completed", e.tx.Id(), state)
		}
		return nil
	}

	if h.role == RoleJoiner {
		e.depth--
		e.mu.Unlock()
		return nil
	}

	produced, err := h.manager.completeOwnerLocked(ctx, e)
	onCommit := e.onCommit
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if onCommit != nil {
		onCommit(ctx, produced)
	}

	return nil
}

// Dispose ends this participation if Complete was not called. An uncompleted joiner marks the
// nest failed; an uncompleted owner rolls back. Safe to defer.
func (h *Handle) Dispose(ctx context.Context) {
	e := h.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.done {
		return
	}
	h.done = true

	if e.closed {
		return
	}

	if h.role == RoleJoiner {
		logx.GetLogger().LogDebug(ctx, "nested scope disposed without completion, marking transaction as failed")
		h.markFailedLocked(errDisposed)
		e.depth--
		return
	}

	logx.GetLogger().LogWarning(logx.WithTransactionId(ctx, e.tx.Id().String()), "owning scope disposed without completion, rolling back")
	e.tx.Rollback(ctx)
	h.manager.closeLocked(ctx, e)
}

// joinedTx is the view of the ambient transaction given to joiners.
type joinedTx struct {
	txn.Transaction
	handle *Handle
}

func (j *joinedTx) Commit(ctx context.Context) (bookmark.Set, error) {
	return bookmark.Set{}, errorx.NewTransactionError(errorx.KindAmbientScopeMismatch,
		"transaction %s is owned by an outer scope and cannot be committed here", j.Id())
}

func (j *joinedTx) Rollback(ctx context.Context) {
	j.handle.MarkFailed(errors.New("rollback requested by a nested scope"))
}

func (j *joinedTx) Cancel() {
	logx.GetLogger().LogWarning(context.Background(), "cancel of an ambient transaction refused in a nested scope")
}

func (j *joinedTx) Release(ctx context.Context) {
	logx.GetLogger().LogWarning(ctx, "release of an ambient transaction refused in a nested scope")
}
