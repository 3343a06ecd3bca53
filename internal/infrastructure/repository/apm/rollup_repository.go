package apm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/shared"
)

// RollupRepository persists hourly/daily rollups and implements retention
// deletes for them.
type RollupRepository struct {
	db *gorm.DB
}

func NewRollupRepository(db *gorm.DB) *RollupRepository {
	return &RollupRepository{db: db}
}

func (r *RollupRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

func (r *RollupRepository) UpsertHourly(ctx context.Context, h *apmDomain.HourlyRollup) error {
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO hourly_rollups (
			hour, project_id, path, method, request_count, error_count,
			sum_total_ms, p50_ms, p95_ms, p99_ms, sum_db_ms, sum_db_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hour, project_id, path, method) DO UPDATE SET
			request_count = excluded.request_count,
			error_count = excluded.error_count,
			sum_total_ms = excluded.sum_total_ms,
			p50_ms = excluded.p50_ms,
			p95_ms = excluded.p95_ms,
			p99_ms = excluded.p99_ms,
			sum_db_ms = excluded.sum_db_ms,
			sum_db_count = excluded.sum_db_count
	`, h.Hour.UTC(), h.ProjectID, h.Path, h.Method, h.RequestCount, h.ErrorCount,
		h.SumTotalMs, h.P50Ms, h.P95Ms, h.P99Ms, h.SumDBMs, h.SumDBCount).Error
}

func (r *RollupRepository) UpsertDaily(ctx context.Context, d *apmDomain.DailyRollup) error {
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO daily_rollups (
			date, project_id, path, method, request_count, error_count,
			p50_ms, p95_ms, p99_ms, avg_db_ms, avg_db_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, project_id, path, method) DO UPDATE SET
			request_count = excluded.request_count,
			error_count = excluded.error_count,
			p50_ms = excluded.p50_ms,
			p95_ms = excluded.p95_ms,
			p99_ms = excluded.p99_ms,
			avg_db_ms = excluded.avg_db_ms,
			avg_db_count = excluded.avg_db_count
	`, d.Date.UTC(), d.ProjectID, d.Path, d.Method, d.RequestCount, d.ErrorCount,
		d.P50Ms, d.P95Ms, d.P99Ms, d.AvgDBMs, d.AvgDBCount).Error
}

func (r *RollupRepository) HourlyOlderThan(ctx context.Context, cutoff time.Time) ([]*apmDomain.HourlyRollup, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT hour, project_id, path, method, request_count, error_count,
		       sum_total_ms, p50_ms, p95_ms, p99_ms, sum_db_ms, sum_db_count
		FROM hourly_rollups WHERE hour < ?
	`, cutoff.UTC()).Rows()
	if err != nil {
		return nil, fmt.Errorf("hourly rollups older than: %w", err)
	}
	defer rows.Close()

	var out []*apmDomain.HourlyRollup
	for rows.Next() {
		h := &apmDomain.HourlyRollup{}
		if err := rows.Scan(&h.Hour, &h.ProjectID, &h.Path, &h.Method, &h.RequestCount, &h.ErrorCount,
			&h.SumTotalMs, &h.P50Ms, &h.P95Ms, &h.P99Ms, &h.SumDBMs, &h.SumDBCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *RollupRepository) DeleteHourlyOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.getDB(ctx).WithContext(ctx).Exec("DELETE FROM hourly_rollups WHERE hour < ?", cutoff.UTC())
	return result.RowsAffected, result.Error
}
