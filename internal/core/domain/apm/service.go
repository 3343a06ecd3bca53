package apm

import (
	"context"
	"time"

	"brokle/pkg/ulid"
)

// TraceView is the result of a trace lookup: all spans with computed
// depth/offset/width display fields.
type TraceView struct {
	TraceID         string       `json:"trace_id"`
	RootSpanID      string       `json:"root_span_id"`
	StartedAt       int64        `json:"started_at_unix_nano"`
	TotalDurationMs float64      `json:"total_duration_ms"`
	Spans           []*SpanView  `json:"spans"`
}

// SpanView is one span within a trace waterfall, with depth and layout
// fields derived by the reader.
type SpanView struct {
	Span
	Depth          int     `json:"depth"`
	OffsetMs       float64 `json:"offset_ms"`
	OffsetPercent  float64 `json:"offset_percent"`
	WidthPercent   float64 `json:"width_percent"`
}

// TraceListItem is one row of a paginated trace listing.
type TraceListItem struct {
	Span
	SpanCount int64 `json:"span_count"`
}

// RouteSummary is a per-(name, method) aggregate over root web spans.
type RouteSummary struct {
	Name         string  `json:"name"`
	Method       string  `json:"method"`
	RequestCount int64   `json:"request_count"`
	AvgMs        float64 `json:"avg_ms"`
	MaxMs        float64 `json:"max_ms"`
	MinMs        float64 `json:"min_ms"`
	ErrorCount   int64   `json:"error_count"`
	P95Ms        float64 `json:"p95_ms"`
	P99Ms        float64 `json:"p99_ms"`
	AvgDBMs      float64 `json:"avg_db_ms"`
	AvgDBCount   float64 `json:"avg_db_count"`
}

// RouteSummarySort is the closed set of sort keys for route summaries.
type RouteSummarySort string

const (
	SortAvg          RouteSummarySort = "avg"
	SortP95          RouteSummarySort = "p95"
	SortP99          RouteSummarySort = "p99"
	SortMax          RouteSummarySort = "max"
	SortDB           RouteSummarySort = "db"
	SortErrors       RouteSummarySort = "errors"
	SortRequestCount RouteSummarySort = "request_count"
)

// NPlusOneIssue is one N+1 query pattern detected over a trace.
type NPlusOneIssue struct {
	Pattern     string   `json:"pattern"`
	Count       int      `json:"count"`
	SumDuration int64    `json:"sum_duration_ms"`
	SpanIDs     []string `json:"span_ids"`
}

// NPlusOneThreshold is the fixed minimum occurrence count for an N+1 issue.
const NPlusOneThreshold = 5

// LatencyStats summarizes a window of root-span durations.
type LatencyStats struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// IngestionService translates OTLP batches and writes spans, extracting
// errors from exception span events (C6).
type IngestionService interface {
	IngestSpans(ctx context.Context, projectID string, req *OTLPRequest) (int, error)
}

// ErrorService inserts/merges error occurrences and serves error reads (C7).
type ErrorService interface {
	IngestError(ctx context.Context, projectID string, in *IncomingError) (ulid.ULID, error)
	IngestErrorsBatch(ctx context.Context, projectID string, in []*IncomingError) (succeeded, failed int)
	ListErrors(ctx context.Context, f ErrorFilter) ([]*ErrorGroup, error)
	GetError(ctx context.Context, id ulid.ULID) (*ErrorGroup, error)
	ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*ErrorOccurrence, error)
	HourlyErrorStats(ctx context.Context, projectID string, hours int) ([]HourlyCount, error)
	ErrorTrend24h(ctx context.Context, groupID ulid.ULID) ([24]int64, error)
}

// TraceService serves trace lookups and listings (C8).
type TraceService interface {
	GetTrace(ctx context.Context, traceID string) (*TraceView, error)
	ListTraces(ctx context.Context, f TraceFilter) ([]*TraceListItem, error)
	DetectNPlusOne(ctx context.Context, traceID string) ([]NPlusOneIssue, error)
}

// AnalyticsService serves route summaries, dashboard stats, and time series (C8).
type AnalyticsService interface {
	RouteSummaries(ctx context.Context, projectID string, since time.Time, sort RouteSummarySort) ([]RouteSummary, error)
	CountSince(ctx context.Context, projectID string, since time.Time) (int64, error)
	LatencyStats(ctx context.Context, projectID string, since time.Time) (*LatencyStats, error)
	HourlyStats(ctx context.Context, projectID string, hours int) ([]HourlyCount, error)
	SlowTraces(ctx context.Context, projectID string, thresholdMs int64, limit int) ([]*TraceListItem, error)
}

// DeployService ingests and lists deploy markers.
type DeployService interface {
	IngestDeploy(ctx context.Context, projectID string, in *IncomingDeploy) (ulid.ULID, error)
	ListDeploys(ctx context.Context, projectID string, limit int) ([]*Deploy, error)
	LatestDeploy(ctx context.Context, projectID string) (*Deploy, error)
}

// APMService is the complete contract exposed to HTTP and JSON-RPC
// collaborators.
type APMService interface {
	IngestionService
	ErrorService
	TraceService
	AnalyticsService
	DeployService
}
