package apm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"brokle/internal/config"
	apmDomain "brokle/internal/core/domain/apm"
)

// vacuumer compacts the store. Satisfied by *database.SQLiteDB.
type vacuumer interface {
	Vacuum() error
}

// RetentionWorker deletes spans, error occurrences, hourly rollups, and
// deploy markers past their retention window, and vacuums the store every
// Sunday.
type RetentionWorker struct {
	logger *slog.Logger
	cfg    *config.Config
	spans  apmDomain.SpanRepository
	errors apmDomain.ErrorGroupRepository
	rollup apmDomain.RollupRepository
	deploy apmDomain.DeployRepository
	db     vacuumer

	ticker *time.Ticker
	quit   chan struct{}
}

// NewRetentionWorker constructs a RetentionWorker.
func NewRetentionWorker(
	logger *slog.Logger,
	cfg *config.Config,
	spans apmDomain.SpanRepository,
	errors apmDomain.ErrorGroupRepository,
	rollup apmDomain.RollupRepository,
	deploy apmDomain.DeployRepository,
	db vacuumer,
) *RetentionWorker {
	return &RetentionWorker{
		logger: logger, cfg: cfg,
		spans: spans, errors: errors, rollup: rollup, deploy: deploy, db: db,
		quit: make(chan struct{}),
	}
}

// Start launches the daily retention loop.
func (w *RetentionWorker) Start() {
	w.ticker = time.NewTicker(24 * time.Hour)
	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.run()
			case <-w.quit:
				w.ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the retention loop.
func (w *RetentionWorker) Stop() {
	close(w.quit)
}

func (w *RetentionWorker) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	// The four categories have independent cutoffs and touch disjoint
	// tables, so they run concurrently under one errgroup; each logs its
	// own failure and returns nil so one category's error never cancels
	// the others' deletes.
	var g errgroup.Group

	g.Go(func() error {
		cutoff := now.AddDate(0, 0, -w.cfg.Retention.SpansDays)
		if n, err := w.spans.DeleteOlderThan(ctx, cutoff); err != nil {
			w.logger.Error("retention: delete spans failed", "error", err)
		} else {
			w.logger.Info("retention: spans deleted", "count", n, "cutoff", cutoff)
		}
		return nil
	})

	g.Go(func() error {
		cutoff := now.AddDate(0, 0, -w.cfg.Retention.ErrorsDays)
		if n, err := w.errors.DeleteOccurrencesOlderThan(ctx, cutoff); err != nil {
			w.logger.Error("retention: delete error occurrences failed", "error", err)
		} else {
			w.logger.Info("retention: error occurrences deleted", "count", n, "cutoff", cutoff)
		}
		return nil
	})

	g.Go(func() error {
		cutoff := now.AddDate(0, 0, -w.cfg.Retention.HourlyRollupsDays)
		if n, err := w.rollup.DeleteHourlyOlderThan(ctx, cutoff); err != nil {
			w.logger.Error("retention: delete hourly rollups failed", "error", err)
		} else {
			w.logger.Info("retention: hourly rollups deleted", "count", n, "cutoff", cutoff)
		}
		return nil
	})

	g.Go(func() error {
		cutoff := now.Add(-apmDomain.DeployRetention)
		if n, err := w.deploy.DeleteOlderThan(ctx, cutoff); err != nil {
			w.logger.Error("retention: delete deploys failed", "error", err)
		} else {
			w.logger.Info("retention: deploys deleted", "count", n, "cutoff", cutoff)
		}
		return nil
	})

	g.Wait()

	if now.Weekday() == time.Sunday {
		if err := w.db.Vacuum(); err != nil {
			w.logger.Error("retention: vacuum failed", "error", err)
		}
	}
}
