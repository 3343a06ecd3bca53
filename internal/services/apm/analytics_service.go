package apm

import (
	"context"
	"sort"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
)

// analyticsService serves route summaries, dashboard stats, and time
// series built from root-span data (C8).
type analyticsService struct {
	spans apmDomain.SpanRepository
}

func newAnalyticsService(spans apmDomain.SpanRepository) *analyticsService {
	return &analyticsService{spans: spans}
}

// RouteSummaries computes per-(name, method) aggregates over root web
// spans in the window, sorted by sort. Percentile-based sorts are applied
// after materialization, since percentiles are themselves computed here
// rather than in storage.
func (s *analyticsService) RouteSummaries(ctx context.Context, projectID string, since time.Time, sortKey apmDomain.RouteSummarySort) ([]apmDomain.RouteSummary, error) {
	keys, err := s.spans.RouteGroups(ctx, projectID, since)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list route groups", err)
	}

	summaries := make([]apmDomain.RouteSummary, 0, len(keys))
	for _, key := range keys {
		durations, err := s.spans.DurationsForRoute(ctx, projectID, key.Name, key.Method, since)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get durations for route", err)
		}
		if len(durations) == 0 {
			continue
		}

		errCount, err := s.spans.ErrorCountForRoute(ctx, projectID, key.Name, key.Method, since)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get error count for route", err)
		}

		sumDBMs, sumDBCount, traceCount, err := s.spans.DBStatsForRoute(ctx, projectID, key.Name, key.Method, since)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get db stats for route", err)
		}
		var avgDBMs, avgDBCount float64
		if traceCount > 0 {
			avgDBMs = sumDBMs / float64(traceCount)
			avgDBCount = sumDBCount / float64(traceCount)
		}

		summaries = append(summaries, apmDomain.RouteSummary{
			Name:         key.Name,
			Method:       key.Method,
			RequestCount: int64(len(durations)),
			AvgMs:        mean(durations),
			MaxMs:        float64(durations[len(durations)-1]),
			MinMs:        float64(durations[0]),
			ErrorCount:   errCount,
			P95Ms:        percentile(durations, 0.95),
			P99Ms:        percentile(durations, 0.99),
			AvgDBMs:      avgDBMs,
			AvgDBCount:   avgDBCount,
		})
	}

	sortRouteSummaries(summaries, sortKey)
	return summaries, nil
}

func sortRouteSummaries(summaries []apmDomain.RouteSummary, sortKey apmDomain.RouteSummarySort) {
	less := func(i, j int) bool { return summaries[i].AvgMs > summaries[j].AvgMs }
	switch sortKey {
	case apmDomain.SortP95:
		less = func(i, j int) bool { return summaries[i].P95Ms > summaries[j].P95Ms }
	case apmDomain.SortP99:
		less = func(i, j int) bool { return summaries[i].P99Ms > summaries[j].P99Ms }
	case apmDomain.SortMax:
		less = func(i, j int) bool { return summaries[i].MaxMs > summaries[j].MaxMs }
	case apmDomain.SortDB:
		less = func(i, j int) bool { return summaries[i].AvgDBMs > summaries[j].AvgDBMs }
	case apmDomain.SortErrors:
		less = func(i, j int) bool { return summaries[i].ErrorCount > summaries[j].ErrorCount }
	case apmDomain.SortRequestCount:
		less = func(i, j int) bool { return summaries[i].RequestCount > summaries[j].RequestCount }
	}
	sort.SliceStable(summaries, less)
}

func (s *analyticsService) CountSince(ctx context.Context, projectID string, since time.Time) (int64, error) {
	durations, err := s.spans.RootDurationsSince(ctx, projectID, since)
	if err != nil {
		return 0, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to count root spans", err)
	}
	return int64(len(durations)), nil
}

func (s *analyticsService) LatencyStats(ctx context.Context, projectID string, since time.Time) (*apmDomain.LatencyStats, error) {
	durations, err := s.spans.RootDurationsSince(ctx, projectID, since)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get root durations", err)
	}
	return &apmDomain.LatencyStats{
		Count: int64(len(durations)),
		AvgMs: mean(durations),
		P95Ms: percentile(durations, 0.95),
		P99Ms: percentile(durations, 0.99),
	}, nil
}

func (s *analyticsService) HourlyStats(ctx context.Context, projectID string, hours int) ([]apmDomain.HourlyCount, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.spans.HourlyRootCounts(ctx, projectID, since)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get hourly root counts", err)
	}
	return zeroFillHourly(stats, hours), nil
}

func (s *analyticsService) SlowTraces(ctx context.Context, projectID string, thresholdMs int64, limit int) ([]*apmDomain.TraceListItem, error) {
	roots, err := s.spans.ListRootsPaginated(ctx, apmDomain.TraceFilter{
		ProjectID:   projectID,
		MinDuration: thresholdMs,
		Sort:        "duration",
		Limit:       limit,
	})
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list slow traces", err)
	}

	items := make([]*apmDomain.TraceListItem, 0, len(roots))
	for _, root := range roots {
		spanCount, err := s.spans.CountByTrace(ctx, root.TraceID)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to count spans for trace", err)
		}
		items = append(items, &apmDomain.TraceListItem{Span: *root, SpanCount: spanCount})
	}
	return items, nil
}
