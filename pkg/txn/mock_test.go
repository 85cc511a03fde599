//nolint:all
package txn_test

import (
	"context"
	"sync"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

// MockHandle - mock a txn.Handle, recording every call it receives.
type MockHandle struct {
	mu           sync.Mutex
	calls        []string
	runFunc      func(ctx context.Context, statement txn.Statement) (*txn.Result, error)
	commitFunc   func(ctx context.Context) (bookmark.Set, error)
	rollbackFunc func(ctx context.Context) error
	releaseFunc  func(ctx context.Context) error
}

func (h *MockHandle) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *MockHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *MockHandle) Count(call string) int {
	n := 0
	for _, c := range h.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (h *MockHandle) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	h.record("run")
	if h.runFunc != nil {
		return h.runFunc(ctx, statement)
	}
	return &txn.Result{}, nil
}

func (h *MockHandle) KeepAlive(ctx context.Context) error {
	h.record("keepalive")
	return nil
}

func (h *MockHandle) Commit(ctx context.Context) (bookmark.Set, error) {
	h.record("commit")
	if h.commitFunc != nil {
		return h.commitFunc(ctx)
	}
	return bookmark.NewSet("bm-1"), nil
}

func (h *MockHandle) Rollback(ctx context.Context) error {
	h.record("rollback")
	if h.rollbackFunc != nil {
		return h.rollbackFunc(ctx)
	}
	return nil
}

func (h *MockHandle) Release(ctx context.Context) error {
	h.record("release")
	if h.releaseFunc != nil {
		return h.releaseFunc(ctx)
	}
	return nil
}
