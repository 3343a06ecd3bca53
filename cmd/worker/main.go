// Command worker runs the rollup/retention scheduler: periodic hourly and
// daily rollup computation, and pruning of spans, error occurrences, and
// deploy markers past their retention windows. It does not serve HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokle/internal/app"
	"brokle/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	worker, err := app.NewWorker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := worker.Start(); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	worker.Logger().Info("shutting down worker")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := worker.Shutdown(ctx); err != nil {
		worker.Logger().Error("worker forced to shutdown", "error", err)
	}

	worker.Logger().Info("worker stopped")
}
