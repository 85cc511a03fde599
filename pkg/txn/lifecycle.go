package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
)

// Info describes a transaction being built by New.
type Info struct {
	// Id is generated when zero.
	Id         uuid.UUID
	ResourceId string
	Transport  TransportKind
	AccessMode AccessMode
	Metadata   map[string]string
	// Bookmarks the transaction was seeded with.
	Bookmarks bookmark.Set
}

//###################################
//#      Transaction lifecycle      #
//###################################

// transaction implements Transaction on top of a transport Handle.
//
// opMu serializes the operations reaching the handle. stateMu only guards state and is never
// held across I/O, so Cancel and State answer while a statement is in flight.
type transaction struct {
	opMu      sync.Mutex
	stateMu   sync.Mutex
	info      Info
	handle    Handle
	state     State
	released  bool
	startedAt time.Time
}

// New wraps an already begun transport handle into an Open Transaction.
func New(handle Handle, info Info) Transaction {
	if info.Id == uuid.Nil {
		info.Id = NewId()
	}
	info.Metadata = copyMetadata(info.Metadata)

	return &transaction{
		info:      info,
		handle:    handle,
		state:     StateOpen,
		startedAt: time.Now(),
	}
}

// HandleOf returns the transport handle behind a Transaction built by New.
func HandleOf(tx Transaction) (Handle, bool) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, false
	}

	return t.handle, true
}

// SeedOf returns the bookmarks a Transaction built by New was begun with.
func SeedOf(tx Transaction) bookmark.Set {
	t, ok := tx.(*transaction)
	if !ok {
		return bookmark.Set{}
	}

	return t.info.Bookmarks
}

func (t *transaction) Id() uuid.UUID {
	return t.info.Id
}

func (t *transaction) Reference() Reference {
	return Reference{Id: t.info.Id, ResourceId: t.info.ResourceId}
}

func (t *transaction) Transport() TransportKind {
	return t.info.Transport
}

func (t *transaction) AccessMode() AccessMode {
	return t.info.AccessMode
}

func (t *transaction) Metadata() map[string]string {
	return copyMetadata(t.info.Metadata)
}

func (t *transaction) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	return t.state
}

func (t *transaction) IsOpen() bool {
	return t.State() == StateOpen
}

func (t *transaction) StartedAt() time.Time {
	return t.startedAt
}

func (t *transaction) String() string {
	return fmt.Sprintf("%s transaction %s", t.info.Transport, t.info.Id)
}

func (t *transaction) logCtx(ctx context.Context) context.Context {
	return logx.WithTransactionId(ctx, t.info.Id.String())
}

func (t *transaction) setState(state State) {
	t.stateMu.Lock()
	t.state = state
	t.stateMu.Unlock()
}

func (t *transaction) notOpenError(op string, state State) error {
	return errorx.NewTransactionError(errorx.KindTransactionAlreadyCompleted,
		"cannot %s: transaction %s is %s", op, t.info.Id, state)
}

// Run - executes a statement while the transaction is Open.
func (t *transaction) Run(ctx context.Context, statement Statement) (*Result, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if state := t.State(); state != StateOpen {
		return nil, t.notOpenError("run", state)
	}

	return t.handle.Run(ctx, statement)
}

// KeepAlive - resets the server side timeout while the transaction is Open.
func (t *transaction) KeepAlive(ctx context.Context) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if state := t.State(); state != StateOpen {
		return t.notOpenError("keep alive", state)
	}

	return t.handle.KeepAlive(ctx)
}

// Commit - commits the transaction and releases the transport handle.
//
// On a transport failure the transaction is considered gone server side: it moves to
// RolledBack and the failure is returned with kind TransactionCommitFailed. It is never retried.
func (t *transaction) Commit(ctx context.Context) (bookmark.Set, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	ctx = t.logCtx(ctx)
	if state := t.State(); state != StateOpen {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("commit ignored, transaction is %s", state))
		return bookmark.Set{}, nil
	}

	// the outcome of the transport wins over a Cancel issued while the commit was in flight
	produced, err := t.handle.Commit(ctx)
	if err != nil {
		t.setState(StateRolledBack)
		t.releaseLocked(ctx)
		logx.GetLogger().LogError(ctx, "error during transaction commit", err)

		return bookmark.Set{}, errorx.NewTransactionErrorWrapper(errorx.KindTransactionCommitFailed, err,
			"commit of transaction %s failed", t.info.Id)
	}

	t.setState(StateCommitted)
	t.releaseLocked(ctx)
	logx.GetLogger().LogDebug(ctx, "transaction committed")

	return produced, nil
}

// Rollback - rolls back the transaction and releases the transport handle.
func (t *transaction) Rollback(ctx context.Context) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	ctx = t.logCtx(ctx)
	if state := t.State(); state != StateOpen {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("rollback ignored, transaction is %s", state))
		return
	}

	t.rollbackLocked(ctx)
	t.releaseLocked(ctx)
}

// Cancel - marks the transaction unusable without any network round trip. It does not wait
// for an operation in flight.
func (t *transaction) Cancel() {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.state == StateOpen {
		t.state = StateCancelled
	}
}

// Release - releases the transport handle exactly once. An Open transaction is rolled back first.
func (t *transaction) Release(ctx context.Context) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	ctx = t.logCtx(ctx)
	if t.State() == StateOpen {
		logx.GetLogger().LogWarning(ctx, "releasing an open transaction, rolling back")
		t.rollbackLocked(ctx)
	}

	t.releaseLocked(ctx)
}

// rollbackLocked and releaseLocked require opMu.
func (t *transaction) rollbackLocked(ctx context.Context) {
	t.setState(StateRolledBack)

	if err := t.handle.Rollback(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, "error Rolling Back transaction",
			errorx.NewTransactionErrorWrapper(errorx.KindTransactionRollbackFailed, err,
				"rollback of transaction %s failed", t.info.Id))
		return
	}

	logx.GetLogger().LogDebug(ctx, "transaction rolled back")
}

func (t *transaction) releaseLocked(ctx context.Context) {
	if t.released {
		return
	}
	t.released = true

	if err := t.handle.Release(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, "error releasing transaction handle", err)
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return map[string]string{}
	}

	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}

	return out
}
