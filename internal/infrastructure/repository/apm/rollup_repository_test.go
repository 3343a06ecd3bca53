package apm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apmDomain "brokle/internal/core/domain/apm"
)

func hourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func TestRollupRepository_UpsertHourlyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()

	hour := hourBucket(time.Now())
	h := &apmDomain.HourlyRollup{
		Hour: hour, ProjectID: "proj-1", Path: "GET /widgets", Method: "GET",
		RequestCount: 10, ErrorCount: 1, SumTotalMs: 1000, P50Ms: 90, P95Ms: 150, P99Ms: 200,
		SumDBMs: 400, SumDBCount: 20,
	}
	require.NoError(t, repo.UpsertHourly(ctx, h))

	h.RequestCount = 20
	h.ErrorCount = 2
	require.NoError(t, repo.UpsertHourly(ctx, h))

	rows, err := repo.HourlyOlderThan(ctx, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(20), rows[0].RequestCount)
	assert.Equal(t, int64(2), rows[0].ErrorCount)
}

func TestRollupRepository_UpsertDaily(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()

	date := time.Now().UTC().Truncate(24 * time.Hour)
	d := &apmDomain.DailyRollup{
		Date: date, ProjectID: "proj-1", Path: "GET /widgets", Method: "GET",
		RequestCount: 500, ErrorCount: 5, P50Ms: 90, P95Ms: 150, P99Ms: 200,
		AvgDBMs: 40.5, AvgDBCount: 2.5,
	}
	require.NoError(t, repo.UpsertDaily(ctx, d))
	require.NoError(t, repo.UpsertDaily(ctx, d), "upserting the same natural key twice must not error")
}

func TestRollupRepository_DeleteHourlyOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRollupRepository(db)
	ctx := context.Background()

	oldHour := hourBucket(time.Now().Add(-100 * 24 * time.Hour))
	recentHour := hourBucket(time.Now())
	require.NoError(t, repo.UpsertHourly(ctx, &apmDomain.HourlyRollup{Hour: oldHour, ProjectID: "proj-1", Path: "/old", Method: "GET"}))
	require.NoError(t, repo.UpsertHourly(ctx, &apmDomain.HourlyRollup{Hour: recentHour, ProjectID: "proj-1", Path: "/new", Method: "GET"}))

	deleted, err := repo.DeleteHourlyOlderThan(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.HourlyOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/new", remaining[0].Path)
}
