// Package fakebolt is an in-memory session provisioning collaborator for tests.
//
// Every call is appended to a shared event log so tests can assert ordering across sessions
// and transactions. Committed transactions produce bookmarks "bm-1", "bm-2", ... and the
// driver remembers which bookmarks each one was seeded with.
package fakebolt

import (
	"context"
	"fmt"
	"sync"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/marcodd23/go-graph-tx/pkg/txn/sessiontx"
	"github.com/pkg/errors"
)

// Event names recorded by the fake.
const (
	EventSessionOpen  = "session.open"
	EventSessionClose = "session.close"
	EventBegin        = "tx.begin"
	EventRun          = "tx.run"
	EventCommit       = "tx.commit"
	EventRollback     = "tx.rollback"
	EventClose        = "tx.close"
)

// Driver - fake sessiontx.Driver.
type Driver struct {
	mu        sync.Mutex
	events    []string
	sessions  []*Session
	bookmarks int
	// causes maps a produced bookmark to the bookmarks its transaction was seeded with.
	causes map[string][]string
	closed bool

	// Failure injection, read under mu.
	FailNewSession error
	FailBegin      error
	FailCommit     error
	FailRollback   error
	FailRun        error
}

// NewDriver returns an empty fake driver.
func NewDriver() *Driver {
	return &Driver{causes: make(map[string][]string)}
}

func (d *Driver) record(event string) {
	d.events = append(d.events, event)
}

// Events returns a copy of the event log.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.events...)
}

// Count returns how many times event was recorded.
func (d *Driver) Count(event string) int {
	n := 0
	for _, e := range d.Events() {
		if e == event {
			n++
		}
	}

	return n
}

// Sessions returns the sessions opened so far.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Session(nil), d.sessions...)
}

// OpenSessions returns how many sessions are not closed yet.
func (d *Driver) OpenSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range d.sessions {
		if !s.closed {
			n++
		}
	}

	return n
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// CausallyAfter reports whether the transaction that produced later observed the transaction
// that produced earlier, directly or through a chain of seeded bookmarks.
func (d *Driver) CausallyAfter(later, earlier string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	visited := map[string]bool{}
	queue := []string{later}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, cause := range d.causes[current] {
			if cause == earlier {
				return true
			}
			queue = append(queue, cause)
		}
	}

	return false
}

func (d *Driver) NewSession(ctx context.Context, config sessiontx.SessionConfig) (sessiontx.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailNewSession != nil {
		return nil, d.FailNewSession
	}

	d.record(fmt.Sprintf("%s:%s", EventSessionOpen, config.AccessMode))
	s := &Session{driver: d, Config: config}
	d.sessions = append(d.sessions, s)

	return s, nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}

// Session - fake sessiontx.Session.
type Session struct {
	driver       *Driver
	Config       sessiontx.SessionConfig
	transactions []*Transaction
	last         bookmark.Set
	closed       bool
}

func (s *Session) BeginTransaction(ctx context.Context) (sessiontx.DriverTransaction, error) {
	d := s.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailBegin != nil {
		return nil, d.FailBegin
	}
	if s.closed {
		return nil, errors.New("session is closed")
	}

	d.record(EventBegin)
	tx := &Transaction{session: s}
	s.transactions = append(s.transactions, tx)

	return tx, nil
}

func (s *Session) LastBookmarks() bookmark.Set {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	return s.last
}

func (s *Session) Close(ctx context.Context) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.driver.record(EventSessionClose)
	}

	return nil
}

// Closed reports whether the session was closed.
func (s *Session) Closed() bool {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	return s.closed
}

// Transaction - fake sessiontx.DriverTransaction.
type Transaction struct {
	session    *Session
	statements []txn.Statement
	committed  bool
	rolledBack bool
	closed     bool
}

func (t *Transaction) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailRun != nil {
		return nil, d.FailRun
	}
	if t.done() {
		return nil, errors.New("transaction is closed")
	}

	d.record(EventRun)
	t.statements = append(t.statements, statement)

	return &txn.Result{Columns: []string{"statement"}, Rows: [][]any{{statement.Text}}}, nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(EventCommit)
	if t.done() {
		return errors.New("transaction is closed")
	}
	if d.FailCommit != nil {
		t.rolledBack = true
		return d.FailCommit
	}

	t.committed = true
	d.bookmarks++
	produced := fmt.Sprintf("bm-%d", d.bookmarks)
	d.causes[produced] = t.session.Config.Bookmarks.Tokens()
	t.session.last = bookmark.NewSet(produced)

	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(EventRollback)
	if d.FailRollback != nil {
		return d.FailRollback
	}
	if t.done() {
		return errors.New("transaction is closed")
	}
	t.rolledBack = true

	return nil
}

func (t *Transaction) Close(ctx context.Context) error {
	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if !t.closed {
		t.closed = true
		if !t.committed {
			t.rolledBack = true
		}
		d.record(EventClose)
	}

	return nil
}

func (t *Transaction) done() bool {
	return t.committed || t.rolledBack || t.closed
}

// Statements returns the statements run on the transaction.
func (t *Transaction) Statements() []txn.Statement {
	t.session.driver.mu.Lock()
	defer t.session.driver.mu.Unlock()

	return append([]txn.Statement(nil), t.statements...)
}

// Committed reports whether the transaction was committed.
func (t *Transaction) Committed() bool {
	t.session.driver.mu.Lock()
	defer t.session.driver.mu.Unlock()

	return t.committed
}

// Transactions returns the transactions begun on the session.
func (s *Session) Transactions() []*Transaction {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	return append([]*Transaction(nil), s.transactions...)
}
