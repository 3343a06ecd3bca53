// Package apm holds the periodic rollup and retention jobs: hourly and
// daily aggregation of span data into rollups_hourly/rollups_daily, and
// deletion of data past its retention window.
package apm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"brokle/internal/core/apm/classify"
	apmDomain "brokle/internal/core/domain/apm"
)

// RollupWorker aggregates the preceding UTC hour's root spans into
// rollups_hourly, and the preceding day's hourly rollups into
// rollups_daily.
type RollupWorker struct {
	logger *slog.Logger
	spans  apmDomain.SpanRepository
	rollup apmDomain.RollupRepository

	hourlyTicker *time.Ticker
	dailyTicker  *time.Ticker
	quit         chan struct{}
}

// NewRollupWorker constructs a RollupWorker.
func NewRollupWorker(logger *slog.Logger, spans apmDomain.SpanRepository, rollup apmDomain.RollupRepository) *RollupWorker {
	return &RollupWorker{logger: logger, spans: spans, rollup: rollup, quit: make(chan struct{})}
}

// Start launches the hourly and daily aggregation loops.
func (w *RollupWorker) Start() {
	w.hourlyTicker = time.NewTicker(time.Hour)
	w.dailyTicker = time.NewTicker(24 * time.Hour)

	go func() {
		for {
			select {
			case <-w.hourlyTicker.C:
				w.runHourly()
			case <-w.dailyTicker.C:
				w.runDaily()
			case <-w.quit:
				w.hourlyTicker.Stop()
				w.dailyTicker.Stop()
				return
			}
		}
	}()
}

// Stop halts both loops.
func (w *RollupWorker) Stop() {
	close(w.quit)
}

// runHourly aggregates the preceding UTC hour into rollups_hourly.
func (w *RollupWorker) runHourly() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()
	end := now.Truncate(time.Hour)
	start := end.Add(-time.Hour)

	if err := w.aggregateHourly(ctx, start, end); err != nil {
		w.logger.Error("hourly rollup failed", "error", err, "hour", start)
	}
}

// runDaily aggregates the preceding UTC day's hourly rollups into
// rollups_daily.
func (w *RollupWorker) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayStart := dayEnd.AddDate(0, 0, -1)

	if err := w.aggregateDaily(ctx, dayStart, dayEnd); err != nil {
		w.logger.Error("daily rollup failed", "error", err, "date", dayStart)
	}
}

type routeAgg struct {
	projectID  string
	path       string
	method     string
	requests   int64
	errors     int64
	durations  []int64
	sumDBMs    int64
	sumDBCount int64
}

func routeKey(projectID, path, method string) string {
	return projectID + "\x00" + path + "\x00" + method
}

func (w *RollupWorker) aggregateHourly(ctx context.Context, start, end time.Time) error {
	roots, err := w.spans.RowsForRollup(ctx, start, end)
	if err != nil {
		return fmt.Errorf("rows for rollup: %w", err)
	}

	aggs := map[string]*routeAgg{}
	for _, sp := range roots {
		key := routeKey(sp.ProjectID, sp.Name, sp.HTTPMethod)
		agg, ok := aggs[key]
		if !ok {
			agg = &routeAgg{projectID: sp.ProjectID, path: sp.Name, method: sp.HTTPMethod}
			aggs[key] = agg
		}
		agg.requests++
		if sp.StatusCode == 2 || sp.HTTPStatusCode >= 500 {
			agg.errors++
		}
		agg.durations = append(agg.durations, sp.DurationMs)

		children, err := w.spans.ListByTrace(ctx, sp.TraceID)
		if err != nil {
			w.logger.Warn("rollup: failed listing trace for db stats", "error", err, "trace_id", sp.TraceID)
			continue
		}
		for _, c := range children {
			if c.Category != classify.CategoryDB {
				continue
			}
			agg.sumDBMs += c.DurationMs
			agg.sumDBCount++
		}
	}

	for _, agg := range aggs {
		sort.Slice(agg.durations, func(i, j int) bool { return agg.durations[i] < agg.durations[j] })
		var sumTotal int64
		for _, d := range agg.durations {
			sumTotal += d
		}

		row := &apmDomain.HourlyRollup{
			Hour:         start,
			ProjectID:    agg.projectID,
			Path:         agg.path,
			Method:       agg.method,
			RequestCount: agg.requests,
			ErrorCount:   agg.errors,
			SumTotalMs:   sumTotal,
			P50Ms:        int64(math.Round(pct(agg.durations, 0.50))),
			P95Ms:        int64(math.Round(pct(agg.durations, 0.95))),
			P99Ms:        int64(math.Round(pct(agg.durations, 0.99))),
			SumDBMs:      agg.sumDBMs,
			SumDBCount:   agg.sumDBCount,
		}
		if err := w.rollup.UpsertHourly(ctx, row); err != nil {
			w.logger.Error("upsert hourly rollup failed", "error", err, "project_id", agg.projectID, "path", agg.path)
		}
	}

	w.logger.Info("hourly rollup completed", "hour", start, "routes", len(aggs))
	return nil
}

func (w *RollupWorker) aggregateDaily(ctx context.Context, dayStart, dayEnd time.Time) error {
	hourlies, err := w.rollup.HourlyOlderThan(ctx, dayEnd)
	if err != nil {
		return fmt.Errorf("list hourly rollups: %w", err)
	}

	type dailyAgg struct {
		projectID    string
		path         string
		method       string
		requestCount int64
		errorCount   int64
		p50sum       float64
		p95sum       float64
		p99sum       float64
		sumDBMs      int64
		sumDBCount   int64
		n            int64
	}
	aggs := map[string]*dailyAgg{}

	for _, h := range hourlies {
		if h.Hour.Before(dayStart) || !h.Hour.Before(dayEnd) {
			continue
		}
		key := routeKey(h.ProjectID, h.Path, h.Method)
		agg, ok := aggs[key]
		if !ok {
			agg = &dailyAgg{projectID: h.ProjectID, path: h.Path, method: h.Method}
			aggs[key] = agg
		}
		agg.requestCount += h.RequestCount
		agg.errorCount += h.ErrorCount
		agg.p50sum += float64(h.P50Ms)
		agg.p95sum += float64(h.P95Ms)
		agg.p99sum += float64(h.P99Ms)
		agg.sumDBMs += h.SumDBMs
		agg.sumDBCount += h.SumDBCount
		agg.n++
	}

	for _, agg := range aggs {
		if agg.n == 0 {
			continue
		}
		row := &apmDomain.DailyRollup{
			Date:         dayStart,
			ProjectID:    agg.projectID,
			Path:         agg.path,
			Method:       agg.method,
			RequestCount: agg.requestCount,
			ErrorCount:   agg.errorCount,
			P50Ms:        int64(math.Round(agg.p50sum / float64(agg.n))),
			P95Ms:        int64(math.Round(agg.p95sum / float64(agg.n))),
			P99Ms:        int64(math.Round(agg.p99sum / float64(agg.n))),
			AvgDBMs:      safeDiv(float64(agg.sumDBMs), float64(agg.requestCount)),
			AvgDBCount:   safeDiv(float64(agg.sumDBCount), float64(agg.requestCount)),
		}
		if err := w.rollup.UpsertDaily(ctx, row); err != nil {
			w.logger.Error("upsert daily rollup failed", "error", err, "project_id", agg.projectID, "path", agg.path)
		}
	}

	w.logger.Info("daily rollup completed", "date", dayStart, "routes", len(aggs))
	return nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// pct indexes a sorted-ascending slice at round(q*(n-1)), mirroring the
// service-layer percentile computation over request latencies.
func pct(sorted []int64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Round(q * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return float64(sorted[idx])
}
