package scope_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/scope"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

// countingHandle is a txn.Handle counting the transport calls it receives.
type countingHandle struct {
	backend *backend
}

func (h *countingHandle) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	return &txn.Result{}, nil
}

func (h *countingHandle) KeepAlive(ctx context.Context) error {
	return nil
}

func (h *countingHandle) Commit(ctx context.Context) (bookmark.Set, error) {
	n := h.backend.commits.Add(1)
	if h.backend.failCommit != nil {
		return bookmark.Set{}, h.backend.failCommit
	}

	return bookmark.NewSet(fmt.Sprintf("bm-%d", n)), nil
}

func (h *countingHandle) Rollback(ctx context.Context) error {
	h.backend.rollbacks.Add(1)
	return nil
}

func (h *countingHandle) Release(ctx context.Context) error {
	h.backend.releases.Add(1)
	return nil
}

// backend begins transactions over countingHandles.
type backend struct {
	begins     atomic.Int32
	commits    atomic.Int32
	rollbacks  atomic.Int32
	releases   atomic.Int32
	failBegin  error
	failCommit error
}

func (b *backend) begin(ctx context.Context) (txn.Transaction, error) {
	if b.failBegin != nil {
		return nil, b.failBegin
	}
	b.begins.Add(1)

	return txn.New(&countingHandle{backend: b}, txn.Info{Transport: txn.TransportSession}), nil
}

func (b *backend) request() scope.Request {
	return scope.Request{Begin: b.begin}
}

// recordingObserver is a scope.Observer keeping counters.
type recordingObserver struct {
	mu        sync.Mutex
	requested map[scope.Role]int
	opened    int
	closed    []txn.State
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{requested: map[scope.Role]int{}}
}

func (o *recordingObserver) ScopeRequested(role scope.Role) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requested[role]++
}

func (o *recordingObserver) EntryOpened(tx txn.Transaction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *recordingObserver) EntryClosed(tx txn.Transaction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, tx.State())
}
