package sessiontx

import (
	"context"
	"fmt"
	"sync"

	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

//###################################
//#    Session-backed TX adapter    #
//###################################

// Adapter - session-backed transport adapter.
// It Implements txn.Adapter: every transaction owns a dedicated session for its whole lifetime.
type Adapter struct {
	driver   Driver
	database string

	// live maps transaction ids to the transactions whose handles this process still holds, for Reattach.
	live sync.Map
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDatabase - target a database other than the server default.
func WithDatabase(database string) Option {
	return func(a *Adapter) {
		a.database = database
	}
}

// NewAdapter - session-backed adapter constructor.
func NewAdapter(driver Driver, opts ...Option) *Adapter {
	a := &Adapter{driver: driver}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Kind() txn.TransportKind {
	return txn.TransportSession
}

// Begin opens a session with the requested access mode and bookmarks, then begins a transaction on it.
//
// Any failure is reported with kind TransactionBeginFailed; a session whose transaction could not
// be started is closed before returning.
func (a *Adapter) Begin(ctx context.Context, opts txn.BeginOptions) (txn.Transaction, error) {
	session, err := a.driver.NewSession(ctx, SessionConfig{
		AccessMode: opts.AccessMode,
		Bookmarks:  opts.Bookmarks,
		Database:   a.database,
	})
	if err != nil {
		return nil, errorx.NewTransactionErrorWrapper(errorx.KindTransactionBeginFailed, err,
			"error opening %s session", opts.AccessMode)
	}

	dtx, err := session.BeginTransaction(ctx)
	if err != nil {
		if closeErr := session.Close(ctx); closeErr != nil {
			logx.GetLogger().LogWarning(ctx, "error closing session after failed begin", closeErr)
		}

		return nil, errorx.NewTransactionErrorWrapper(errorx.KindTransactionBeginFailed, err,
			"error starting transaction")
	}

	id := txn.NewId()
	handle := &sessionTx{adapter: a, id: id, session: session, tx: dtx}
	tx := txn.New(handle, txn.Info{
		Id:         id,
		Transport:  txn.TransportSession,
		AccessMode: opts.AccessMode,
		Metadata:   opts.Metadata,
		Bookmarks:  opts.Bookmarks,
	})
	a.live.Store(id, tx)

	logx.GetLogger().LogDebug(logx.WithTransactionId(ctx, id.String()),
		fmt.Sprintf("began %s transaction, seeded with %d bookmarks", opts.AccessMode, opts.Bookmarks.Len()))

	return tx, nil
}

// Reattach returns the Transaction bound to ref.Id that this process still holds: the same
// object Begin returned.
//
// This is a local shortcut, not a network resume: once the transaction has been released, or
// from another process, it fails with TransactionNotFound.
func (a *Adapter) Reattach(ref txn.Reference) (txn.Transaction, error) {
	v, ok := a.live.Load(ref.Id)
	if !ok {
		return nil, errorx.NewTransactionError(errorx.KindTransactionNotFound,
			"no live session transaction %s in this process", ref.Id)
	}

	return v.(txn.Transaction), nil
}

// Live returns the number of transactions whose handles are still held.
func (a *Adapter) Live() int {
	n := 0
	a.live.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Close - closes the underlying driver.
func (a *Adapter) Close(ctx context.Context) error {
	if n := a.Live(); n > 0 {
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("closing driver with %d transactions still open", n))
	}

	return a.driver.Close(ctx)
}
