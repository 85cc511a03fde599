package fibersrv

import (
	"context"
	"fmt"
	"net"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/servermgr"
)

// FiberServer - Fiber server.
type FiberServer struct {
	Server *fiber.App
	name   string
	config configmgr.ServerConfig
}

// NewFiberServer - Fiber server constructor.
func NewFiberServer(config configmgr.Config) servermgr.Server[*fiber.App] {
	return NewNamedFiberServer(config.GetServiceName(), config.GetServerConfig())
}

// NewNamedFiberServer - Fiber server from a bare server section. A nil section uses the defaults.
func NewNamedFiberServer(name string, serverConfig *configmgr.ServerConfig) *FiberServer {
	srv := &FiberServer{name: name}
	if serverConfig != nil {
		srv.config = *serverConfig
	}

	srv.Server = fiber.New(buildFiberConfig(name, srv.config))

	return srv
}

func buildFiberConfig(name string, config configmgr.ServerConfig) fiber.Config {
	return fiber.Config{
		AppName:               name,
		Concurrency:           config.Concurrency,
		DisableStartupMessage: config.DisableStartupMessage,
		Prefork:               false,
		CaseSensitive:         true,
		StrictRouting:         true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	}
}

// GetServer - return the fiber server.
func (srv *FiberServer) GetServer() *fiber.App {
	return srv.Server
}

// RunSync - Run the server sync.
func (srv *FiberServer) RunSync() {
	if srv.Server != nil {
		runServer(srv)
	}
}

// RunAsync - Run the server async.
func (srv *FiberServer) RunAsync() {
	if srv.Server != nil {
		go func() {
			runServer(srv)
		}()
	}
}

// RunOnListener - serve on ln until Shutdown.
func (srv *FiberServer) RunOnListener(ln net.Listener) error {
	return srv.Server.Listener(ln)
}

// Setup - Receive a callback function setupFunc that let to configure the server.
func (srv *FiberServer) Setup(ctx context.Context, setupFunc func(fiber *fiber.App)) {
	if srv.Server != nil {
		setupFunc(srv.Server)
	}
}

// Shutdown - shutdown the server.
func (srv *FiberServer) Shutdown(ctx context.Context) {
	if srv.Server != nil {
		if err := srv.Server.ShutdownWithContext(ctx); err != nil {
			logx.GetLogger().LogError(ctx, "Error shutting down the Server", err)
		} else {
			logx.GetLogger().LogInfo(ctx, "Server shut down.. ")
		}
	}
}

func runServer(srv *FiberServer) {
	port := srv.config.Port
	if port == "" {
		port = "8080"
	}

	if err := srv.Server.Listen(fmt.Sprintf(":%s", port)); err != nil {
		logx.GetLogger().LogPanic(context.TODO(), "Oops... server is not running! error:", err)
	}
}
