package txn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
)

// Transaction defines the unit of work callers interact with, independently of the transport.
//
// A Transaction exclusively owns its transport handle. Commit and Rollback only reach the
// transport while the transaction is Open; afterwards they are no-ops, so a deferred Release
// or a repeated Commit is always safe.
//
// Typical usage:
//
//	tx, err := adapter.Begin(ctx, txn.BeginOptions{AccessMode: txn.AccessModeWrite})
//	if err != nil {
//	    return err
//	}
//	defer tx.Release(ctx) // rolls back if still open
//
//	if _, err := tx.Run(ctx, txn.NewStatement("CREATE (:Person {name: $name})", map[string]any{"name": "Ada"})); err != nil {
//	    return err
//	}
//
//	bookmarks, err := tx.Commit(ctx)
type Transaction interface {
	// Id is process unique and stable for the transaction's lifetime.
	Id() uuid.UUID
	// Reference is what a caller persists to re-attach to the transaction later.
	Reference() Reference
	Transport() TransportKind
	AccessMode() AccessMode
	// Metadata returns a copy of the caller supplied header-like values sent with every operation.
	Metadata() map[string]string
	State() State
	IsOpen() bool
	StartedAt() time.Time

	// Run executes one statement under the transaction. TransactionAlreadyCompleted when not Open.
	Run(ctx context.Context, statement Statement) (*Result, error)
	// KeepAlive resets the server side expiry where the transport has one.
	KeepAlive(ctx context.Context) error
	// Commit transitions Open -> Committed and returns the bookmarks the commit produced.
	Commit(ctx context.Context) (bookmark.Set, error)
	// Rollback transitions Open -> RolledBack. Transport failures are only logged.
	Rollback(ctx context.Context)
	// Cancel transitions Open -> Cancelled without contacting the server.
	Cancel()
	// Release releases the transport handle, rolling back first if still Open. Idempotent.
	Release(ctx context.Context)
}

// Handle is the transport-native side of a transaction, implemented by each adapter.
//
// The Transaction built by New serializes calls and guarantees Commit/Rollback are invoked at
// most once in total and Release exactly once.
type Handle interface {
	Run(ctx context.Context, statement Statement) (*Result, error)
	KeepAlive(ctx context.Context) error
	Commit(ctx context.Context) (bookmark.Set, error)
	Rollback(ctx context.Context) error
	Release(ctx context.Context) error
}

// Adapter translates the Transaction contract onto one transport. It is selected once, at
// configuration time.
type Adapter interface {
	Kind() TransportKind
	Begin(ctx context.Context, opts BeginOptions) (Transaction, error)
	// Reattach rebuilds a Transaction bound to a previously issued Reference.
	Reattach(ref Reference) (Transaction, error)
	Close(ctx context.Context) error
}

// BeginOptions - transport independent begin parameters.
type BeginOptions struct {
	AccessMode AccessMode
	// Bookmarks seeds the transaction so it observes the effects of the bookmarked transactions.
	Bookmarks bookmark.Set
	Metadata  map[string]string
}

// Reference identifies a transaction across an asynchronous boundary.
type Reference struct {
	Id uuid.UUID
	// ResourceId is the server issued identifier (resource-backed transport only).
	ResourceId string
}

// NewId returns a fresh transaction id.
func NewId() uuid.UUID {
	return uuid.New()
}

// Statement is a parameterised query.
type Statement struct {
	Text       string
	Parameters map[string]any
}

func NewStatement(text string, parameters map[string]any) Statement {
	return Statement{Text: text, Parameters: parameters}
}

// Result is the tabular outcome of one statement.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Value returns the value of column in row i, or nil.
func (r *Result) Value(i int, column string) any {
	if r == nil || i < 0 || i >= len(r.Rows) {
		return nil
	}
	for c, name := range r.Columns {
		if name == column && c < len(r.Rows[i]) {
			return r.Rows[i][c]
		}
	}

	return nil
}
