// Package apm holds the domain entities, repository interfaces, and
// service interfaces for the trace-ingestion and analytics engine.
package apm

import (
	"fmt"
	"time"

	"brokle/internal/core/apm/classify"
	"brokle/pkg/ulid"
	"brokle/pkg/utils"
)

// Span is the leaf observation of a trace.
type Span struct {
	TraceID      string  `json:"trace_id" db:"trace_id"`
	SpanID       string  `json:"span_id" db:"span_id"`
	ParentSpanID *string `json:"parent_span_id,omitempty" db:"parent_span_id"`
	ProjectID    string  `json:"project_id" db:"project_id"`

	StartTimeUnixNano int64 `json:"start_time_unix_nano" db:"start_time_unix_nano"`
	EndTimeUnixNano   int64 `json:"end_time_unix_nano" db:"end_time_unix_nano"`
	DurationMs        int64 `json:"duration_ms" db:"duration_ms"`

	Name          string `json:"name" db:"name"`
	Kind          int    `json:"kind" db:"kind"`
	StatusCode    int    `json:"status_code" db:"status_code"`
	StatusMessage string `json:"status_message,omitempty" db:"status_message"`

	Category     classify.Category `json:"category" db:"category"`
	RootSpanType *classify.RootType `json:"root_span_type,omitempty" db:"root_span_type"`

	ServiceName string `json:"service_name,omitempty" db:"service_name"`

	// Denormalized fields, populated when present in the span's flattened
	// attributes, so dashboard queries avoid JSON extraction.
	HTTPMethod        string `json:"http_method,omitempty" db:"http_method"`
	HTTPURL           string `json:"http_url,omitempty" db:"http_url"`
	HTTPStatusCode    int    `json:"http_status_code,omitempty" db:"http_status_code"`
	DBSystem          string `json:"db_system,omitempty" db:"db_system"`
	DBStatement       string `json:"db_statement,omitempty" db:"db_statement"`
	DBOperation       string `json:"db_operation,omitempty" db:"db_operation"`
	MessagingSystem   string `json:"messaging_system,omitempty" db:"messaging_system"`
	MessagingDest     string `json:"messaging_destination,omitempty" db:"messaging_destination"`
	RequestID         string `json:"request_id,omitempty" db:"request_id"`

	AttributesJSON string `json:"attributes_json" db:"attributes_json"`
	EventsJSON     string `json:"events_json" db:"events_json"`
	ResourceJSON   string `json:"resource_json" db:"resource_json"`

	HappenedAt string `json:"happened_at" db:"happened_at"` // human-sortable timestamp
}

// SortableTimeFormat renders a UTC time.Time as lexically sortable text: a
// fixed nine-digit fractional part, so two formatted timestamps compare the
// same way whether compared as strings or as instants. time.RFC3339Nano
// trims trailing zero digits, which breaks that property.
const SortableTimeFormat = "2006-01-02T15:04:05.000000000Z"

// IsRoot reports whether a span has no parent.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == nil || *s.ParentSpanID == ""
}

// SpanEvent is a single OTLP span event, used to extract exceptions.
type SpanEvent struct {
	Name       string            `json:"name"`
	TimeUnixNano int64           `json:"time_unix_nano"`
	Attributes map[string]string `json:"attributes"`
}

// ErrorStatus is the lifecycle status of an error group.
type ErrorStatus string

const (
	ErrorStatusOpen     ErrorStatus = "open"
	ErrorStatusResolved ErrorStatus = "resolved"
	ErrorStatusIgnored  ErrorStatus = "ignored"
)

// ErrorGroup aggregates error occurrences sharing a fingerprint.
type ErrorGroup struct {
	ID              ulid.ULID   `json:"id" db:"id"`
	ProjectID       string      `json:"project_id" db:"project_id"`
	Fingerprint     string      `json:"fingerprint" db:"fingerprint"`
	ExceptionClass  string      `json:"exception_class" db:"exception_class"`
	Message         string      `json:"message" db:"message"`
	FirstSeen       time.Time   `json:"first_seen" db:"first_seen"`
	LastSeen        time.Time   `json:"last_seen" db:"last_seen"`
	OccurrenceCount int64       `json:"occurrence_count" db:"occurrence_count"`
	Status          ErrorStatus `json:"status" db:"status"`
}

// ErrorOccurrence is a single sighting linked to an error group.
type ErrorOccurrence struct {
	ID            ulid.ULID  `json:"id" db:"id"`
	ErrorGroupID  ulid.ULID  `json:"error_group_id" db:"error_group_id"`
	ProjectID     string     `json:"project_id" db:"project_id"`
	BacktraceJSON string     `json:"backtrace_json" db:"backtrace_json"`
	RequestID     string     `json:"request_id,omitempty" db:"request_id"`
	UserID        string     `json:"user_id,omitempty" db:"user_id"`
	ParamsJSON    string     `json:"params_json,omitempty" db:"params_json"`
	SourceFile    string     `json:"source_file,omitempty" db:"source_file"`
	SourceLine    int        `json:"source_line,omitempty" db:"source_line"`
	SourcePre     string     `json:"source_pre,omitempty" db:"source_pre"`
	SourceContext string     `json:"source_context,omitempty" db:"source_context"`
	SourcePost    string     `json:"source_post,omitempty" db:"source_post"`
	Timestamp     time.Time  `json:"timestamp" db:"timestamp"`
}

// IncomingError is the shape accepted on the ingest-errors write path.
type IncomingError struct {
	ExceptionClass string            `json:"exception_class"`
	Message        string            `json:"message"`
	Backtrace      []string          `json:"backtrace"`
	Fingerprint    string            `json:"fingerprint,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	Params         map[string]any    `json:"params,omitempty"`
	Timestamp      *time.Time        `json:"timestamp,omitempty"`
	SourceContext  *SourceContext    `json:"source_context,omitempty"`
}

// SourceContext is optional surrounding-source-code context for a crash.
type SourceContext struct {
	File    string   `json:"file"`
	Lineno  int      `json:"lineno"`
	Pre     []string `json:"pre_context,omitempty"`
	Context []string `json:"context_line,omitempty"`
	Post    []string `json:"post_context,omitempty"`
}

// Deploy is a deployment marker used to annotate time-series charts.
type Deploy struct {
	ID          ulid.ULID `json:"id" db:"id"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	GitSHA      string    `json:"git_sha" db:"git_sha"`
	Version     string    `json:"version,omitempty" db:"version"`
	Env         string    `json:"env,omitempty" db:"env"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Description string    `json:"description,omitempty" db:"description"`
	Deployer    string    `json:"deployer,omitempty" db:"deployer"`
}

// IncomingDeploy is the shape accepted on the ingest-deploys write path.
type IncomingDeploy struct {
	GitSHA      string     `json:"git_sha"`
	Version     string     `json:"version,omitempty"`
	Env         string     `json:"env,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Description string     `json:"description,omitempty"`
	Deployer    string     `json:"deployer,omitempty"`
}

// DeployRetention is a fixed, non-configurable retention window for deploy
// markers.
const DeployRetention = 90 * 24 * time.Hour

// Project scopes ingestion and queries by API key.
type Project struct {
	ID        ulid.ULID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	APIKey    string    `json:"api_key" db:"api_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// APIKeyPrefix and APIKeyHexLen define the project API key format: "proj_"
// followed by 48 hex characters (24 random bytes).
const (
	APIKeyPrefix  = "proj_"
	APIKeyHexLen  = 48
	apiKeyRandLen = 24
)

// NewProjectAPIKey generates a fresh project API key in the proj_<hex> format.
func NewProjectAPIKey() (string, error) {
	hex, err := utils.GenerateHexToken(apiKeyRandLen)
	if err != nil {
		return "", fmt.Errorf("generate project api key: %w", err)
	}
	return APIKeyPrefix + hex, nil
}

// HourlyRollup is a pre-aggregated per-(hour, path, method) statistic row.
type HourlyRollup struct {
	Hour         time.Time `json:"hour" db:"hour"`
	ProjectID    string    `json:"project_id" db:"project_id"`
	Path         string    `json:"path" db:"path"`
	Method       string    `json:"method" db:"method"`
	RequestCount int64     `json:"request_count" db:"request_count"`
	ErrorCount   int64     `json:"error_count" db:"error_count"`
	SumTotalMs   int64     `json:"sum_total_ms" db:"sum_total_ms"`
	P50Ms        int64     `json:"p50_ms" db:"p50_ms"`
	P95Ms        int64     `json:"p95_ms" db:"p95_ms"`
	P99Ms        int64     `json:"p99_ms" db:"p99_ms"`
	SumDBMs      int64     `json:"sum_db_ms" db:"sum_db_ms"`
	SumDBCount   int64     `json:"sum_db_count" db:"sum_db_count"`
}

// DailyRollup is a pre-aggregated per-(date, path, method) statistic row.
type DailyRollup struct {
	Date         time.Time `json:"date" db:"date"`
	ProjectID    string    `json:"project_id" db:"project_id"`
	Path         string    `json:"path" db:"path"`
	Method       string    `json:"method" db:"method"`
	RequestCount int64     `json:"request_count" db:"request_count"`
	ErrorCount   int64     `json:"error_count" db:"error_count"`
	P50Ms        int64     `json:"p50_ms" db:"p50_ms"`
	P95Ms        int64     `json:"p95_ms" db:"p95_ms"`
	P99Ms        int64     `json:"p99_ms" db:"p99_ms"`
	AvgDBMs      float64   `json:"avg_db_ms" db:"avg_db_ms"`
	AvgDBCount   float64   `json:"avg_db_count" db:"avg_db_count"`
}
