package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"brokle/internal/config"
	"brokle/pkg/logging"
)

// App is the single entry point both cmd/server and cmd/worker drive: one
// mode starts the HTTP/gRPC/JSON-RPC transports, the other starts the
// rollup/retention scheduler. Both share the same Core.
type App struct {
	mode         DeploymentMode
	core         *Core
	server       *ServerComponents
	worker       *WorkerComponents
	shutdownOnce sync.Once
}

// NewServer builds an App that serves HTTP, the optional gRPC OTLP
// receiver, and the JSON-RPC tool interface. It does not start any
// background scheduler.
func NewServer(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	core, err := provideCore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init core: %w", err)
	}

	server, err := provideServerComponents(core)
	if err != nil {
		return nil, fmt.Errorf("init server components: %w", err)
	}

	return &App{mode: ModeServer, core: core, server: server}, nil
}

// NewWorker builds an App that runs only the rollup/retention scheduler.
func NewWorker(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	core, err := provideCore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init core: %w", err)
	}

	worker := provideWorkerComponents(core)

	return &App{mode: ModeWorker, core: core, worker: worker}, nil
}

// Start launches the mode's components. In server mode, HTTP and (when
// enabled) gRPC each run in their own goroutine and Start returns without
// waiting for their listeners; a serve error is logged, not returned. In
// worker mode, Start returns once the scheduler's tickers are running.
func (a *App) Start() error {
	a.core.Logger.Info("starting", "mode", a.mode)

	switch a.mode {
	case ModeServer:
		// HTTP/gRPC Start() block on their listener's Serve loop for the
		// process lifetime; run each in its own goroutine and log a
		// post-startup failure. The process keeps running after one.
		go func() {
			if err := a.server.HTTP.Start(); err != nil {
				a.core.Logger.Error("HTTP server stopped unexpectedly", "error", err)
			}
		}()

		if a.server.GRPC != nil {
			go func() {
				if err := a.server.GRPC.Start(); err != nil {
					a.core.Logger.Error("gRPC server stopped unexpectedly", "error", err)
				}
			}()
		}

		a.core.Logger.Info("server started",
			"http_addr", fmt.Sprintf("%s:%d", a.core.Config.Server.Host, a.core.Config.Server.Port),
			"grpc_enabled", a.server.GRPC != nil,
		)

	case ModeWorker:
		a.worker.Scheduler.Start()
		a.core.Logger.Info("worker scheduler started")
	}

	return nil
}

// Shutdown gracefully stops whichever components this App started, then
// closes the database. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.shutdownOnce.Do(func() {
		shutdownErr = a.doShutdown(ctx)
	})
	return shutdownErr
}

func (a *App) doShutdown(ctx context.Context) error {
	a.core.Logger.Info("shutting down", "mode", a.mode)

	var wg sync.WaitGroup

	switch a.mode {
	case ModeServer:
		if a.server.GRPC != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := a.server.GRPC.Shutdown(ctx); err != nil {
					a.core.Logger.Error("gRPC shutdown failed", "error", err)
				}
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.HTTP.Shutdown(ctx); err != nil {
				a.core.Logger.Error("HTTP shutdown failed", "error", err)
			}
		}()

	case ModeWorker:
		a.worker.Scheduler.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.core.Logger.Warn("shutdown timeout exceeded, forcing close")
	}

	if err := a.core.DB.Close(); err != nil {
		a.core.Logger.Error("database close failed", "error", err)
	}
	if err := a.core.Migration.Close(); err != nil {
		a.core.Logger.Error("migration manager close failed", "error", err)
	}

	a.core.Logger.Info("shutdown complete")
	return nil
}

// Health reports whether the database answers a ping.
func (a *App) Health() map[string]string {
	status := "ok"
	if err := a.core.DB.Health(); err != nil {
		status = "unhealthy: " + err.Error()
	}
	return map[string]string{"database": status}
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.core.Logger
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.core.Config
}
