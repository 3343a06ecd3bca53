package apm

import (
	"context"
	"time"

	"brokle/pkg/ulid"
)

// SpanRepository persists and queries spans (C5, C6, C8).
type SpanRepository interface {
	// Upsert inserts or replaces a span keyed by (trace_id, span_id).
	Upsert(ctx context.Context, span *Span) error
	ListByTrace(ctx context.Context, traceID string) ([]*Span, error)
	ListRootsPaginated(ctx context.Context, f TraceFilter) ([]*Span, error)
	CountByTrace(ctx context.Context, traceID string) (int64, error)
	RouteGroups(ctx context.Context, projectID string, since time.Time) ([]RouteKey, error)
	DurationsForRoute(ctx context.Context, projectID, name, method string, since time.Time) ([]int64, error)
	DBStatsForRoute(ctx context.Context, projectID, name, method string, since time.Time) (sumDBMs float64, sumDBCount float64, traceCount int64, err error)
	ErrorCountForRoute(ctx context.Context, projectID, name, method string, since time.Time) (int64, error)
	RootDurationsSince(ctx context.Context, projectID string, since time.Time) ([]int64, error)
	HourlyRootCounts(ctx context.Context, projectID string, since time.Time) ([]HourlyCount, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// RowsForRollup returns raw root-span rows in [start, end) for the rollup job.
	RowsForRollup(ctx context.Context, start, end time.Time) ([]*Span, error)
}

// RouteKey identifies a distinct (name, method) group among root web spans.
type RouteKey struct {
	Name   string
	Method string
}

// HourlyCount is one bucket of the hourly time-series.
type HourlyCount struct {
	Hour       time.Time
	Count      int64
	AvgMs      float64
	ErrorCount int64
}

// TraceFilter parameterizes ListRootsPaginated.
type TraceFilter struct {
	ProjectID   string
	RootType    string
	Since       *time.Time
	Search      string
	MinDuration int64
	Sort        string // recent|duration|spans
	Limit       int
	Offset      int
}

// ErrorGroupRepository persists and queries error groups and occurrences (C7).
type ErrorGroupRepository interface {
	GetByFingerprint(ctx context.Context, projectID, fingerprint string) (*ErrorGroup, error)
	Create(ctx context.Context, group *ErrorGroup) error
	IncrementAndTouch(ctx context.Context, id ulid.ULID, at time.Time) error
	ListFiltered(ctx context.Context, f ErrorFilter) ([]*ErrorGroup, error)
	GetByID(ctx context.Context, id ulid.ULID) (*ErrorGroup, error)
	InsertOccurrence(ctx context.Context, occ *ErrorOccurrence) error
	ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*ErrorOccurrence, error)
	HourlyStats(ctx context.Context, projectID string, hours int) ([]HourlyCount, error)
	OccurrenceCountsByHour(ctx context.Context, groupID ulid.ULID, since time.Time) ([]HourlyCount, error)
	DeleteOccurrencesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrorFilter parameterizes ListFiltered.
type ErrorFilter struct {
	ProjectID string
	Status    string
	Search    string
	Since     *time.Time
	SortBy    string // last_seen|first_seen|count
	Limit     int
	Offset    int
}

// DeployRepository persists and queries deploy markers (C5/C10).
type DeployRepository interface {
	Create(ctx context.Context, d *Deploy) error
	List(ctx context.Context, projectID string, limit int) ([]*Deploy, error)
	Latest(ctx context.Context, projectID string) (*Deploy, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProjectRepository persists and queries projects (C5/C10).
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByAPIKey(ctx context.Context, key string) (*Project, error)
	Count(ctx context.Context) (int64, error)
	GetDefault(ctx context.Context) (*Project, error)
}

// RollupRepository persists hourly/daily rollups and implements retention
// deletes for them (C9).
type RollupRepository interface {
	UpsertHourly(ctx context.Context, r *HourlyRollup) error
	UpsertDaily(ctx context.Context, r *DailyRollup) error
	HourlyOlderThan(ctx context.Context, cutoff time.Time) ([]*HourlyRollup, error)
	DeleteHourlyOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
