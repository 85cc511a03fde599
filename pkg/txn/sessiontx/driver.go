package sessiontx

import (
	"context"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

// Driver provisions sessions on the session-backed transport. The adapter never dials
// connections itself.
type Driver interface {
	NewSession(ctx context.Context, config SessionConfig) (Session, error)
	Close(ctx context.Context) error
}

// SessionConfig - parameters of one session.
type SessionConfig struct {
	AccessMode txn.AccessMode
	// Bookmarks the server must have caught up with before the session's first transaction runs.
	Bookmarks bookmark.Set
	// Database is empty for the server default.
	Database string
}

// Session hosts sequential transactions over one logical connection.
type Session interface {
	BeginTransaction(ctx context.Context) (DriverTransaction, error)
	// LastBookmarks returns the bookmarks of the last transaction committed on the session.
	LastBookmarks() bookmark.Set
	Close(ctx context.Context) error
}

// DriverTransaction is the native transaction object of the driver.
type DriverTransaction interface {
	Run(ctx context.Context, statement txn.Statement) (*txn.Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Close disposes the transaction; an uncommitted transaction is rolled back by the driver.
	Close(ctx context.Context) error
}
