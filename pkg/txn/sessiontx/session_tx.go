package sessiontx

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/pkg/errors"
)

// Environment exposes the native objects of a session-backed transaction to the
// commit/rollback helpers.
type Environment interface {
	DriverTransaction() DriverTransaction
	Session() Session
}

// sessionTx implements txn.Handle and Environment. It holds the session for the whole
// lifetime of the transaction.
type sessionTx struct {
	adapter *Adapter
	id      uuid.UUID
	session Session
	tx      DriverTransaction

	releaseOnce sync.Once
	releaseErr  error
}

func (s *sessionTx) DriverTransaction() DriverTransaction {
	return s.tx
}

func (s *sessionTx) Session() Session {
	return s.session
}

func (s *sessionTx) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	res, err := s.tx.Run(ctx, statement)
	if err != nil {
		return nil, errors.Wrapf(err, "error running statement on transaction %s", s.id)
	}

	return res, nil
}

// KeepAlive - the session keeps the transaction alive for as long as it is open.
func (s *sessionTx) KeepAlive(ctx context.Context) error {
	return nil
}

func (s *sessionTx) Commit(ctx context.Context) (bookmark.Set, error) {
	if err := s.tx.Commit(ctx); err != nil {
		return bookmark.Set{}, errors.WithStack(err)
	}

	return s.session.LastBookmarks(), nil
}

func (s *sessionTx) Rollback(ctx context.Context) error {
	return errors.WithStack(s.tx.Rollback(ctx))
}

// Release - disposes the driver transaction, then closes the session. Runs once.
func (s *sessionTx) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		s.adapter.live.Delete(s.id)

		txErr := s.tx.Close(ctx)
		sessErr := s.session.Close(ctx)

		switch {
		case txErr != nil:
			s.releaseErr = errors.Wrap(txErr, "error closing driver transaction")
		case sessErr != nil:
			s.releaseErr = errors.Wrap(sessErr, "error closing session")
		}
	})

	return s.releaseErr
}

// EnvironmentOf returns the native environment of a session-backed transaction.
func EnvironmentOf(tx txn.Transaction) (Environment, bool) {
	h, ok := txn.HandleOf(tx)
	if !ok {
		return nil, false
	}

	env, ok := h.(Environment)

	return env, ok
}

// DoCommit - commits the driver transaction then disposes it, in that order.
//
// It works directly on the native objects, outside the ambient scope machinery; it is meant for
// externally coordinated flows holding a re-attached transaction. The dispose step runs even
// when the commit fails.
//
// The session stays open and the transaction stays registered for Reattach: the caller still
// owns the txn.Transaction and must Cancel then Release it to close the session.
func DoCommit(ctx context.Context, env Environment) error {
	dtx := env.DriverTransaction()
	commitErr := dtx.Commit(ctx)
	closeErr := dtx.Close(ctx)

	if commitErr != nil {
		return errors.Wrap(commitErr, "error committing driver transaction")
	}

	return errors.Wrap(closeErr, "error disposing driver transaction")
}

// DoRollback - rolls the driver transaction back then disposes it, in that order. As with
// DoCommit, the session is closed by releasing the txn.Transaction.
func DoRollback(ctx context.Context, env Environment) error {
	dtx := env.DriverTransaction()
	rollbackErr := dtx.Rollback(ctx)
	closeErr := dtx.Close(ctx)

	if rollbackErr != nil {
		return errors.Wrap(rollbackErr, "error rolling back driver transaction")
	}

	return errors.Wrap(closeErr, "error disposing driver transaction")
}
