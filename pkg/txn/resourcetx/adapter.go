package resourcetx

import (
	"context"
	"fmt"
	"sync"

	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
)

//###################################
//#   Resource-backed TX adapter    #
//###################################

// Adapter - resource-backed transport adapter. It Implements txn.Adapter.
type Adapter struct {
	client *Client

	// live maps transaction ids to the transactions of this process, so Reattach hands back
	// the object already in use instead of a second one over the same resource.
	live sync.Map
}

// NewAdapter - resource-backed adapter constructor.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Kind() txn.TransportKind {
	return txn.TransportResource
}

// Client returns the client the adapter issues requests with.
func (a *Adapter) Client() *Client {
	return a.client
}

// Begin opens a transaction resource. Bookmarks are not supported by the endpoint and are ignored.
func (a *Adapter) Begin(ctx context.Context, opts txn.BeginOptions) (txn.Transaction, error) {
	id := txn.NewId()
	ctx = logx.WithTransactionId(ctx, id.String())

	if !opts.Bookmarks.IsEmpty() {
		logx.GetLogger().LogDebug(ctx, "bookmarks are ignored by the resource-backed transport")
	}

	resourceId, err := a.client.Begin(ctx, opts.Metadata)
	if err != nil {
		return nil, errorx.NewTransactionErrorWrapper(errorx.KindTransactionBeginFailed, err,
			"error starting %s transaction", opts.AccessMode)
	}

	tx := txn.New(&resourceTx{adapter: a, id: id, client: a.client, resourceId: resourceId, metadata: copyOf(opts.Metadata)}, txn.Info{
		Id:         id,
		ResourceId: resourceId,
		Transport:  txn.TransportResource,
		AccessMode: opts.AccessMode,
		Metadata:   opts.Metadata,
		Bookmarks:  opts.Bookmarks,
	})
	a.live.Store(id, tx)

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("began %s transaction on resource %s", opts.AccessMode, resourceId))

	return tx, nil
}

// Reattach returns the Transaction of ref. A transaction this process still holds is returned
// as is; otherwise a new one is bound to the server resource of ref. That works from any
// process since the resource lives on the server; whether it is still open is only known on
// first use.
func (a *Adapter) Reattach(ref txn.Reference) (txn.Transaction, error) {
	if v, ok := a.live.Load(ref.Id); ok {
		return v.(txn.Transaction), nil
	}
	if ref.ResourceId == "" {
		return nil, errorx.NewTransactionError(errorx.KindTransactionNotFound,
			"transaction %s has no resource id", ref.Id)
	}

	tx := txn.New(&resourceTx{adapter: a, id: ref.Id, client: a.client, resourceId: ref.ResourceId}, txn.Info{
		Id:         ref.Id,
		ResourceId: ref.ResourceId,
		Transport:  txn.TransportResource,
	})
	actual, _ := a.live.LoadOrStore(ref.Id, tx)

	return actual.(txn.Transaction), nil
}

// Live returns the number of transactions not released yet.
func (a *Adapter) Live() int {
	n := 0
	a.live.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Close - nothing to release, requests are not pooled by the adapter.
func (a *Adapter) Close(ctx context.Context) error {
	return nil
}

func copyOf(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}

	return out
}
