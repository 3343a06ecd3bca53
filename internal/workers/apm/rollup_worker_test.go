package apm

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle/internal/core/apm/classify"
	apmDomain "brokle/internal/core/domain/apm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func webRoot() *classify.RootType {
	rt := classify.RootTypeWeb
	return &rt
}

func TestAggregateHourly(t *testing.T) {
	spanRepo := &fakeSpanRepository{}
	rollupRepo := &fakeRollupRepository{}
	w := NewRollupWorker(testLogger(), spanRepo, rollupRepo)

	hourStart := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	for i, d := range []int64{100, 200, 300} {
		spanRepo.spans = append(spanRepo.spans, &apmDomain.Span{
			TraceID: "t" + string(rune('a'+i)), SpanID: "root", ProjectID: "p1",
			Name: "GET /x", HTTPMethod: "GET", RootSpanType: webRoot(),
			StartTimeUnixNano: hourStart.Add(time.Duration(i) * time.Minute).UnixNano(),
			DurationMs:        d,
		})
	}
	spanRepo.spans = append(spanRepo.spans, &apmDomain.Span{
		TraceID: "ta", SpanID: "db1", ParentSpanID: strp("root"), ProjectID: "p1",
		Category: classify.CategoryDB, DBStatement: "SELECT 1", DurationMs: 5,
	})

	err := w.aggregateHourly(context.Background(), hourStart, hourStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rollupRepo.hourly, 1)

	row := rollupRepo.hourly[0]
	assert.Equal(t, "p1", row.ProjectID)
	assert.Equal(t, "GET /x", row.Path)
	assert.Equal(t, int64(3), row.RequestCount)
	assert.Equal(t, int64(600), row.SumTotalMs)
	assert.Equal(t, int64(5), row.SumDBMs)
	assert.Equal(t, int64(1), row.SumDBCount)
}

func TestAggregateHourly_ExcludesOutOfWindowSpans(t *testing.T) {
	spanRepo := &fakeSpanRepository{}
	rollupRepo := &fakeRollupRepository{}
	w := NewRollupWorker(testLogger(), spanRepo, rollupRepo)

	hourStart := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	spanRepo.spans = append(spanRepo.spans, &apmDomain.Span{
		TraceID: "t1", SpanID: "root", ProjectID: "p1", Name: "GET /x", HTTPMethod: "GET",
		RootSpanType: webRoot(), StartTimeUnixNano: hourStart.Add(-time.Minute).UnixNano(), DurationMs: 10,
	})

	err := w.aggregateHourly(context.Background(), hourStart, hourStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rollupRepo.hourly)
}

func TestAggregateDaily(t *testing.T) {
	rollupRepo := &fakeRollupRepository{}
	w := NewRollupWorker(testLogger(), &fakeSpanRepository{}, rollupRepo)

	dayStart := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	rollupRepo.hourly = []*apmDomain.HourlyRollup{
		{Hour: dayStart.Add(1 * time.Hour), ProjectID: "p1", Path: "GET /x", Method: "GET", RequestCount: 10, ErrorCount: 1, P50Ms: 100, P95Ms: 200, P99Ms: 300, SumDBMs: 50, SumDBCount: 10},
		{Hour: dayStart.Add(2 * time.Hour), ProjectID: "p1", Path: "GET /x", Method: "GET", RequestCount: 20, ErrorCount: 2, P50Ms: 110, P95Ms: 210, P99Ms: 310, SumDBMs: 60, SumDBCount: 20},
		{Hour: dayEnd.Add(time.Hour), ProjectID: "p1", Path: "GET /x", Method: "GET", RequestCount: 999},
	}

	err := w.aggregateDaily(context.Background(), dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, rollupRepo.daily, 1)

	row := rollupRepo.daily[0]
	assert.Equal(t, int64(30), row.RequestCount)
	assert.Equal(t, int64(3), row.ErrorCount)
	assert.Equal(t, int64(105), row.P50Ms)
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, safeDiv(5, 0))
	assert.Equal(t, 2.5, safeDiv(5, 2))
}

func strp(s string) *string { return &s }
