package scope

import (
	"context"

	"github.com/google/uuid"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
)

// Key identifies one logical call chain. Scopes requested with contexts carrying the same Key
// share the ambient transaction.
type Key uuid.UUID

// NewKey returns a fresh Key.
func NewKey() Key {
	return Key(uuid.New())
}

func (k Key) String() string {
	return uuid.UUID(k).String()
}

type keyCtx struct{}

// KeyFrom returns the Key carried by ctx.
func KeyFrom(ctx context.Context) (Key, bool) {
	k, ok := ctx.Value(keyCtx{}).(Key)
	return k, ok
}

// WithKey binds ctx to key.
func WithKey(ctx context.Context, key Key) context.Context {
	return logx.WithScopeKey(context.WithValue(ctx, keyCtx{}, key), key.String())
}

// ensureKey returns ctx unchanged when it already carries a Key.
func ensureKey(ctx context.Context) (context.Context, Key) {
	if key, ok := KeyFrom(ctx); ok {
		return ctx, key
	}

	key := NewKey()

	return WithKey(ctx, key), key
}
