package servermgr

import (
	"context"
	"net"
)

// Server - server interface.
type Server[T any] interface {
	RunSync()
	RunAsync()
	// RunOnListener serves on an already bound listener until Shutdown. Used by tests binding port 0.
	RunOnListener(ln net.Listener) error
	GetServer() T
	Setup(ctx context.Context, setupFunc func(server T))
	Shutdown(ctx context.Context)
}
