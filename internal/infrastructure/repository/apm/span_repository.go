package apm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"brokle/internal/core/apm/classify"
	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/shared"
)

// SpanRepository persists and queries spans.
type SpanRepository struct {
	db *gorm.DB
}

func NewSpanRepository(db *gorm.DB) *SpanRepository {
	return &SpanRepository{db: db}
}

func (r *SpanRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

// Upsert inserts or replaces a span keyed by (trace_id, span_id), giving
// idempotent re-ingestion of the same OTLP batch.
func (r *SpanRepository) Upsert(ctx context.Context, s *apmDomain.Span) error {
	query := `
		INSERT INTO spans (
			trace_id, span_id, parent_span_id, project_id,
			start_time_unix_nano, end_time_unix_nano, duration_ms,
			name, kind, status_code, status_message,
			category, root_span_type, service_name,
			http_method, http_url, http_status_code,
			db_system, db_statement, db_operation,
			messaging_system, messaging_destination, request_id,
			attributes_json, events_json, resource_json, happened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trace_id, span_id) DO UPDATE SET
			parent_span_id = excluded.parent_span_id,
			project_id = excluded.project_id,
			start_time_unix_nano = excluded.start_time_unix_nano,
			end_time_unix_nano = excluded.end_time_unix_nano,
			duration_ms = excluded.duration_ms,
			name = excluded.name,
			kind = excluded.kind,
			status_code = excluded.status_code,
			status_message = excluded.status_message,
			category = excluded.category,
			root_span_type = excluded.root_span_type,
			service_name = excluded.service_name,
			http_method = excluded.http_method,
			http_url = excluded.http_url,
			http_status_code = excluded.http_status_code,
			db_system = excluded.db_system,
			db_statement = excluded.db_statement,
			db_operation = excluded.db_operation,
			messaging_system = excluded.messaging_system,
			messaging_destination = excluded.messaging_destination,
			request_id = excluded.request_id,
			attributes_json = excluded.attributes_json,
			events_json = excluded.events_json,
			resource_json = excluded.resource_json,
			happened_at = excluded.happened_at
	`
	var rootType *string
	if s.RootSpanType != nil {
		v := string(*s.RootSpanType)
		rootType = &v
	}
	return r.getDB(ctx).WithContext(ctx).Exec(query,
		s.TraceID, s.SpanID, s.ParentSpanID, s.ProjectID,
		s.StartTimeUnixNano, s.EndTimeUnixNano, s.DurationMs,
		s.Name, s.Kind, s.StatusCode, s.StatusMessage,
		string(s.Category), rootType, s.ServiceName,
		s.HTTPMethod, s.HTTPURL, s.HTTPStatusCode,
		s.DBSystem, s.DBStatement, s.DBOperation,
		s.MessagingSystem, s.MessagingDest, s.RequestID,
		s.AttributesJSON, s.EventsJSON, s.ResourceJSON, s.HappenedAt,
	).Error
}

func (r *SpanRepository) ListByTrace(ctx context.Context, traceID string) ([]*apmDomain.Span, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(selectSpanColumns+" FROM spans WHERE trace_id = ? ORDER BY start_time_unix_nano ASC", traceID).Rows()
	if err != nil {
		return nil, fmt.Errorf("list spans by trace: %w", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

func (r *SpanRepository) CountByTrace(ctx context.Context, traceID string) (int64, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Raw("SELECT COUNT(*) FROM spans WHERE trace_id = ?", traceID).Scan(&count).Error
	return count, err
}

// ListRootsPaginated lists root spans (trace entry points) matching f,
// newest first unless f.Sort overrides it.
func (r *SpanRepository) ListRootsPaginated(ctx context.Context, f apmDomain.TraceFilter) ([]*apmDomain.Span, error) {
	where := []string{"project_id = ?", "(parent_span_id IS NULL OR parent_span_id = '')"}
	args := []interface{}{f.ProjectID}

	if f.RootType != "" {
		where = append(where, "root_span_type = ?")
		args = append(args, f.RootType)
	}
	if f.Since != nil {
		where = append(where, "happened_at >= ?")
		args = append(args, f.Since.UTC().Format(apmDomain.SortableTimeFormat))
	}
	if f.Search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	if f.MinDuration > 0 {
		where = append(where, "duration_ms >= ?")
		args = append(args, f.MinDuration)
	}

	order := "happened_at DESC"
	switch f.Sort {
	case "duration":
		order = "duration_ms DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf("%s FROM spans WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		selectSpanColumns, strings.Join(where, " AND "), order)
	args = append(args, limit, f.Offset)

	rows, err := r.getDB(ctx).WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("list root spans: %w", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

// RouteGroups returns the distinct (name, method) pairs among root web
// spans for a project since the given time.
func (r *SpanRepository) RouteGroups(ctx context.Context, projectID string, since time.Time) ([]apmDomain.RouteKey, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT DISTINCT name, COALESCE(http_method, '') FROM spans
		WHERE project_id = ? AND root_span_type = ? AND happened_at >= ?
	`, projectID, string(classify.RootTypeWeb), since.UTC().Format(apmDomain.SortableTimeFormat)).Rows()
	if err != nil {
		return nil, fmt.Errorf("route groups: %w", err)
	}
	defer rows.Close()

	var keys []apmDomain.RouteKey
	for rows.Next() {
		var k apmDomain.RouteKey
		if err := rows.Scan(&k.Name, &k.Method); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *SpanRepository) DurationsForRoute(ctx context.Context, projectID, name, method string, since time.Time) ([]int64, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT duration_ms FROM spans
		WHERE project_id = ? AND root_span_type = ? AND name = ? AND COALESCE(http_method,'') = ? AND happened_at >= ?
		ORDER BY duration_ms ASC
	`, projectID, string(classify.RootTypeWeb), name, method, since.UTC().Format(apmDomain.SortableTimeFormat)).Rows()
	if err != nil {
		return nil, fmt.Errorf("durations for route: %w", err)
	}
	defer rows.Close()

	var durations []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	return durations, rows.Err()
}

// DBStatsForRoute sums DB-span time and count across all traces rooted at
// (name, method), for the "avg db time / avg db query count" route columns.
func (r *SpanRepository) DBStatsForRoute(ctx context.Context, projectID, name, method string, since time.Time) (sumDBMs float64, sumDBCount float64, traceCount int64, err error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(db.duration_ms), 0), COALESCE(COUNT(db.span_id), 0), COUNT(DISTINCT root.trace_id)
		FROM spans root
		LEFT JOIN spans db ON db.trace_id = root.trace_id AND db.category = 'db'
		WHERE root.project_id = ? AND root.root_span_type = ? AND root.name = ?
		  AND COALESCE(root.http_method,'') = ? AND root.happened_at >= ?
		  AND (root.parent_span_id IS NULL OR root.parent_span_id = '')
	`, projectID, string(classify.RootTypeWeb), name, method, since.UTC().Format(apmDomain.SortableTimeFormat)).Row()
	err = row.Scan(&sumDBMs, &sumDBCount, &traceCount)
	return
}

// ErrorCountForRoute counts root spans for (name, method) whose status
// indicates failure: an OTLP status code of error (2), or a denormalized
// HTTP status >= 500.
func (r *SpanRepository) ErrorCountForRoute(ctx context.Context, projectID, name, method string, since time.Time) (int64, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM spans
		WHERE project_id = ? AND root_span_type = ? AND name = ? AND COALESCE(http_method,'') = ? AND happened_at >= ?
		  AND (status_code = 2 OR http_status_code >= 500)
	`, projectID, string(classify.RootTypeWeb), name, method, since.UTC().Format(apmDomain.SortableTimeFormat)).Scan(&count).Error
	return count, err
}

func (r *SpanRepository) RootDurationsSince(ctx context.Context, projectID string, since time.Time) ([]int64, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT duration_ms FROM spans
		WHERE project_id = ? AND (parent_span_id IS NULL OR parent_span_id = '') AND happened_at >= ?
		ORDER BY duration_ms ASC
	`, projectID, since.UTC().Format(apmDomain.SortableTimeFormat)).Rows()
	if err != nil {
		return nil, fmt.Errorf("root durations since: %w", err)
	}
	defer rows.Close()

	var durations []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	return durations, rows.Err()
}

// HourlyRootCounts buckets root-span counts, average duration, and error
// counts by hour, for the dashboard's live time series. The hourly rollup
// job reads RowsForRollup instead.
func (r *SpanRepository) HourlyRootCounts(ctx context.Context, projectID string, since time.Time) ([]apmDomain.HourlyCount, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT strftime('%Y-%m-%dT%H:00:00Z', happened_at) AS hour,
		       COUNT(*), AVG(duration_ms),
		       SUM(CASE WHEN status_code = 2 OR http_status_code >= 500 THEN 1 ELSE 0 END)
		FROM spans
		WHERE project_id = ? AND (parent_span_id IS NULL OR parent_span_id = '') AND happened_at >= ?
		GROUP BY hour
		ORDER BY hour ASC
	`, projectID, since.UTC().Format(apmDomain.SortableTimeFormat)).Rows()
	if err != nil {
		return nil, fmt.Errorf("hourly root counts: %w", err)
	}
	defer rows.Close()

	var out []apmDomain.HourlyCount
	for rows.Next() {
		var hourStr string
		var hc apmDomain.HourlyCount
		if err := rows.Scan(&hourStr, &hc.Count, &hc.AvgMs, &hc.ErrorCount); err != nil {
			return nil, err
		}
		hc.Hour, err = time.Parse(time.RFC3339, hourStr)
		if err != nil {
			return nil, fmt.Errorf("parse hour bucket: %w", err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

func (r *SpanRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.getDB(ctx).WithContext(ctx).Exec("DELETE FROM spans WHERE happened_at < ?", cutoff.UTC().Format(apmDomain.SortableTimeFormat))
	return result.RowsAffected, result.Error
}

// RowsForRollup returns root spans in [start, end) for the rollup job.
func (r *SpanRepository) RowsForRollup(ctx context.Context, start, end time.Time) ([]*apmDomain.Span, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(
		selectSpanColumns+` FROM spans
		WHERE (parent_span_id IS NULL OR parent_span_id = '') AND happened_at >= ? AND happened_at < ?`,
		start.UTC().Format(apmDomain.SortableTimeFormat), end.UTC().Format(apmDomain.SortableTimeFormat),
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("rows for rollup: %w", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

const selectSpanColumns = `
	SELECT trace_id, span_id, parent_span_id, project_id,
	       start_time_unix_nano, end_time_unix_nano, duration_ms,
	       name, kind, status_code, status_message,
	       category, root_span_type, service_name,
	       http_method, http_url, http_status_code,
	       db_system, db_statement, db_operation,
	       messaging_system, messaging_destination, request_id,
	       attributes_json, events_json, resource_json, happened_at`

func scanSpans(rows *sql.Rows) ([]*apmDomain.Span, error) {
	var out []*apmDomain.Span
	for rows.Next() {
		s := &apmDomain.Span{}
		var category string
		var rootType sql.NullString
		if err := rows.Scan(
			&s.TraceID, &s.SpanID, &s.ParentSpanID, &s.ProjectID,
			&s.StartTimeUnixNano, &s.EndTimeUnixNano, &s.DurationMs,
			&s.Name, &s.Kind, &s.StatusCode, &s.StatusMessage,
			&category, &rootType, &s.ServiceName,
			&s.HTTPMethod, &s.HTTPURL, &s.HTTPStatusCode,
			&s.DBSystem, &s.DBStatement, &s.DBOperation,
			&s.MessagingSystem, &s.MessagingDest, &s.RequestID,
			&s.AttributesJSON, &s.EventsJSON, &s.ResourceJSON, &s.HappenedAt,
		); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		s.Category = classify.Category(category)
		if rootType.Valid {
			rt := classify.RootType(rootType.String)
			s.RootSpanType = &rt
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
