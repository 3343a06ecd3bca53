package apm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"brokle/internal/core/apm/classify"
	"brokle/internal/core/apm/codec"
	apmDomain "brokle/internal/core/domain/apm"
)

// ingestionService translates OTLP batches into span rows and extracts
// synthetic errors from exception span events (C6).
type ingestionService struct {
	spans  apmDomain.SpanRepository
	errors apmDomain.ErrorService
	logger *slog.Logger
}

func newIngestionService(spans apmDomain.SpanRepository, errors apmDomain.ErrorService, logger *slog.Logger) *ingestionService {
	return &ingestionService{spans: spans, errors: errors, logger: logger}
}

// IngestSpans translates req into span rows and writes them. A malformed
// span (bad id, bad timestamp) aborts the whole batch with InvalidBatch;
// exception extraction failures are warn-logged and never fail the span
// insert that produced them.
func (s *ingestionService) IngestSpans(ctx context.Context, projectID string, req *apmDomain.OTLPRequest) (int, error) {
	count := 0

	for _, rs := range req.ResourceSpans {
		resourceAttrs := codec.FlattenAttributes(rs.Resource.Attributes)
		serviceName := resourceAttrs["service.name"]
		resourceJSON, err := json.Marshal(resourceAttrs)
		if err != nil {
			return count, apmDomain.WrapError(apmDomain.KindInvalidBatch, "failed to serialize resource attributes", err)
		}

		for _, ss := range rs.ScopeSpans {
			for _, otlpSpan := range ss.Spans {
				span, events, err := s.translateSpan(projectID, serviceName, string(resourceJSON), otlpSpan)
				if err != nil {
					return count, err
				}

				if err := s.spans.Upsert(ctx, span); err != nil {
					return count, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to upsert span", err)
				}
				count++

				s.extractExceptions(ctx, projectID, span, events)
			}
		}
	}

	return count, nil
}

func (s *ingestionService) translateSpan(projectID, serviceName, resourceJSON string, otlpSpan apmDomain.OTLPSpan) (*apmDomain.Span, []apmDomain.OTLPEvent, error) {
	traceID := codec.DecodeID(otlpSpan.TraceID)
	spanID := codec.DecodeID(otlpSpan.SpanID)
	if traceID == "" || spanID == "" {
		return nil, nil, apmDomain.NewError(apmDomain.KindInvalidBatch, "span missing trace id or span id")
	}

	startNano, err := codec.ParseNano(otlpSpan.StartTimeUnixNano)
	if err != nil {
		return nil, nil, apmDomain.WrapError(apmDomain.KindInvalidBatch, "invalid span start time", err)
	}
	endNano, err := codec.ParseNano(otlpSpan.EndTimeUnixNano)
	if err != nil {
		return nil, nil, apmDomain.WrapError(apmDomain.KindInvalidBatch, "invalid span end time", err)
	}

	attrs := codec.FlattenAttributes(otlpSpan.Attributes)
	category := classify.Classify(otlpSpan.Name, otlpSpan.Kind, attrs)

	var parentSpanID *string
	if otlpSpan.ParentSpanID != "" {
		decoded := codec.DecodeID(otlpSpan.ParentSpanID)
		parentSpanID = &decoded
	}

	var rootSpanType *classify.RootType
	if parentSpanID == nil || *parentSpanID == "" {
		if rt, ok := classify.RootTypeFor(category); ok {
			rootSpanType = &rt
		}
	}

	attributesJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, apmDomain.WrapError(apmDomain.KindInvalidBatch, "failed to serialize span attributes", err)
	}
	eventsJSON, err := json.Marshal(otlpSpan.Events)
	if err != nil {
		return nil, nil, apmDomain.WrapError(apmDomain.KindInvalidBatch, "failed to serialize span events", err)
	}

	var statusCode int
	var statusMessage string
	if otlpSpan.Status != nil {
		statusCode = otlpSpan.Status.Code
		statusMessage = otlpSpan.Status.Message
	}

	httpStatus := 0
	if v, ok := attrs["http.status_code"]; ok {
		httpStatus, _ = strconv.Atoi(v)
	} else if v, ok := attrs["http.response.status_code"]; ok {
		httpStatus, _ = strconv.Atoi(v)
	}

	span := &apmDomain.Span{
		TraceID:           traceID,
		SpanID:            spanID,
		ParentSpanID:      parentSpanID,
		ProjectID:         projectID,
		StartTimeUnixNano: startNano,
		EndTimeUnixNano:   endNano,
		DurationMs:        (endNano - startNano) / int64(time.Millisecond),
		Name:              otlpSpan.Name,
		Kind:              otlpSpan.Kind,
		StatusCode:        statusCode,
		StatusMessage:     statusMessage,
		Category:          category,
		RootSpanType:      rootSpanType,
		ServiceName:       serviceName,
		HTTPMethod:        firstOf(attrs, "http.method", "http.request.method"),
		HTTPURL:           firstOf(attrs, "http.url", "url.full"),
		HTTPStatusCode:    httpStatus,
		DBSystem:          attrs["db.system"],
		DBStatement:       attrs["db.statement"],
		DBOperation:       attrs["db.operation"],
		MessagingSystem:   attrs["messaging.system"],
		MessagingDest:     firstOf(attrs, "messaging.destination.name", "messaging.destination"),
		RequestID:         firstOf(attrs, "http.request_id", "request_id"),
		AttributesJSON:    string(attributesJSON),
		EventsJSON:        string(eventsJSON),
		ResourceJSON:      resourceJSON,
		HappenedAt:        time.Unix(0, startNano).UTC().Format(apmDomain.SortableTimeFormat),
	}

	return span, otlpSpan.Events, nil
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := attrs[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// extractExceptions scans a span's events for "exception" events and
// forwards each as a synthetic incoming error. Failures here are
// warn-logged and never propagate: per C6, extraction failure must not
// fail the span insert that already succeeded.
func (s *ingestionService) extractExceptions(ctx context.Context, projectID string, span *apmDomain.Span, events []apmDomain.OTLPEvent) {
	for _, event := range events {
		if event.Name != "exception" {
			continue
		}

		attrs := codec.FlattenAttributes(event.Attributes)
		exceptionType := attrs["exception.type"]
		message := attrs["exception.message"]
		stacktrace := attrs["exception.stacktrace"]

		if exceptionType == "" {
			s.logger.Warn("span exception event missing exception.type", "trace_id", span.TraceID, "span_id", span.SpanID)
			continue
		}

		var backtrace []string
		if stacktrace != "" {
			backtrace = strings.Split(stacktrace, "\n")
		}

		firstLine := ""
		if len(backtrace) > 0 {
			firstLine = backtrace[0]
		}
		fingerprint := fmt.Sprintf("%x", sha256.Sum256([]byte(exceptionType+":"+firstLine)))

		occurredAt := time.Unix(0, span.StartTimeUnixNano).UTC()

		incoming := &apmDomain.IncomingError{
			ExceptionClass: exceptionType,
			Message:        message,
			Backtrace:      backtrace,
			Fingerprint:    fingerprint,
			RequestID:      span.TraceID,
			Timestamp:      &occurredAt,
		}

		if _, err := s.errors.IngestError(ctx, projectID, incoming); err != nil {
			s.logger.Warn("failed to extract error from span exception event",
				"trace_id", span.TraceID, "span_id", span.SpanID, "error", err)
		}
	}
}

