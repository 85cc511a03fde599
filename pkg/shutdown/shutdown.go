package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/pkg/errors"
)

// Cleanup releases one resource on shutdown (HTTP server, coordinator, driver).
type Cleanup func(ctx context.Context) error

// WaitForShutdown blocks until SIGINT or SIGTERM, or until rootCtx is done, then runs the
// cleanups in order within timeout.
//
// Usage:
//
//	shutdown.WaitForShutdown(ctx, 5*time.Second,
//	    func(ctx context.Context) error { srv.Shutdown(ctx); return nil },
//	    coordinator.Close,
//	)
func WaitForShutdown(rootCtx context.Context, timeout time.Duration, cleanups ...Cleanup) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		logx.GetLogger().LogDebug(rootCtx, fmt.Sprintf("Interrupt signal captured: %s", sig.String()))
	case <-rootCtx.Done():
		logx.GetLogger().LogDebug(rootCtx, "root context done")
	}

	// the root context may already be cancelled: cleanups get their own deadline
	return Run(context.WithoutCancel(rootCtx), timeout, cleanups...)
}

// Run executes the cleanups in order and waits for them until timeout expires.
// It returns the first cleanup error, or the deadline error when they did not finish in time.
func Run(rootCtx context.Context, timeout time.Duration, cleanups ...Cleanup) error {
	timeoutCtx, cancel := context.WithTimeout(rootCtx, timeout)
	defer cancel()

	logx.GetLogger().LogInfo(timeoutCtx, "Cleaning up all resources ....")

	done := make(chan error, 1)
	go func() {
		var first error
		for i, cleanup := range cleanups {
			if cleanup == nil {
				continue
			}
			if err := cleanup(timeoutCtx); err != nil {
				logx.GetLogger().LogError(timeoutCtx, fmt.Sprintf("cleanup %d failed", i), err)
				if first == nil {
					first = err
				}
			}
		}
		done <- first
	}()

	select {
	case <-timeoutCtx.Done():
		logx.GetLogger().LogError(timeoutCtx, "Deadline exceeded during context cancellation", timeoutCtx.Err())
		return errors.WithStack(timeoutCtx.Err())
	case err := <-done:
		if err == nil {
			logx.GetLogger().LogInfo(timeoutCtx, "All resources cleaned up")
		}
		return err
	}
}
