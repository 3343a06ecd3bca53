package grpc

import (
	"context"
	"encoding/hex"
	"strconv"

	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"

	"brokle/internal/core/apm/codec"
	apmDomain "brokle/internal/core/domain/apm"
)

// OTLPHandler implements the standard OTLP TraceService gRPC server,
// translating protobuf OTLP straight into the same IngestSpans path the
// HTTP JSON ingest endpoint uses.
type OTLPHandler struct {
	coltracepb.UnimplementedTraceServiceServer

	ingestion apmDomain.IngestionService
	logger    *slog.Logger
}

func NewOTLPHandler(ingestion apmDomain.IngestionService, logger *slog.Logger) *OTLPHandler {
	return &OTLPHandler{ingestion: ingestion, logger: logger}
}

// Export implements TraceService.Export (the standard OTLP/gRPC method).
func (h *OTLPHandler) Export(
	ctx context.Context,
	req *coltracepb.ExportTraceServiceRequest,
) (*coltracepb.ExportTraceServiceResponse, error) {
	projectID, err := extractProjectIDFromContext(ctx)
	if err != nil {
		h.logger.Error("project id missing from gRPC context", "error", err)
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	if len(req.ResourceSpans) == 0 {
		return nil, status.Error(codes.InvalidArgument, "OTLP request must contain at least one resource span")
	}

	otlpReq := convertProtoToInternal(req)

	n, err := h.ingestion.IngestSpans(ctx, *projectID, &otlpReq)
	if err != nil {
		h.logger.Error("gRPC OTLP ingest failed", "project_id", *projectID, "error", err)
		return nil, status.Error(codes.Internal, "failed to ingest spans")
	}

	h.logger.Debug("gRPC OTLP spans ingested", "project_id", *projectID, "spans", n)

	return &coltracepb.ExportTraceServiceResponse{}, nil
}

// RegisterOTLPTraceService registers the OTLP trace handler with a gRPC server.
func RegisterOTLPTraceService(server *grpc.Server, handler *OTLPHandler) {
	coltracepb.RegisterTraceServiceServer(server, handler)
}

// convertProtoToInternal converts the standard OTLP protobuf request into
// the OTLP-JSON shaped internal request the ingestion service understands,
// so both transports share one translation semantics (C6).
func convertProtoToInternal(protoReq *coltracepb.ExportTraceServiceRequest) apmDomain.OTLPRequest {
	var internalReq apmDomain.OTLPRequest

	for _, protoRS := range protoReq.ResourceSpans {
		internalRS := apmDomain.OTLPResourceSpans{}

		if protoRS.Resource != nil {
			for _, attr := range protoRS.Resource.Attributes {
				internalRS.Resource.Attributes = append(internalRS.Resource.Attributes, convertProtoKeyValue(attr))
			}
		}

		for _, protoSS := range protoRS.ScopeSpans {
			internalSS := apmDomain.OTLPScopeSpans{}

			if protoSS.Scope != nil {
				internalSS.Scope.Name = protoSS.Scope.Name
				internalSS.Scope.Version = protoSS.Scope.Version
				for _, attr := range protoSS.Scope.Attributes {
					internalSS.Scope.Attributes = append(internalSS.Scope.Attributes, convertProtoKeyValue(attr))
				}
			}

			for _, protoSpan := range protoSS.Spans {
				internalSpan := apmDomain.OTLPSpan{
					TraceID:           hex.EncodeToString(protoSpan.TraceId),
					SpanID:            hex.EncodeToString(protoSpan.SpanId),
					Name:              protoSpan.Name,
					Kind:              int(protoSpan.Kind),
					StartTimeUnixNano: strconv.FormatUint(protoSpan.StartTimeUnixNano, 10),
					EndTimeUnixNano:   strconv.FormatUint(protoSpan.EndTimeUnixNano, 10),
				}
				if len(protoSpan.ParentSpanId) > 0 {
					internalSpan.ParentSpanID = hex.EncodeToString(protoSpan.ParentSpanId)
				}

				for _, attr := range protoSpan.Attributes {
					internalSpan.Attributes = append(internalSpan.Attributes, convertProtoKeyValue(attr))
				}

				if protoSpan.Status != nil {
					internalSpan.Status = &apmDomain.OTLPStatus{
						Code:    int(protoSpan.Status.Code),
						Message: protoSpan.Status.Message,
					}
				}

				for _, protoEvent := range protoSpan.Events {
					internalEvent := apmDomain.OTLPEvent{
						Name:         protoEvent.Name,
						TimeUnixNano: strconv.FormatUint(protoEvent.TimeUnixNano, 10),
					}
					for _, attr := range protoEvent.Attributes {
						internalEvent.Attributes = append(internalEvent.Attributes, convertProtoKeyValue(attr))
					}
					internalSpan.Events = append(internalSpan.Events, internalEvent)
				}

				internalSS.Spans = append(internalSS.Spans, internalSpan)
			}

			internalRS.ScopeSpans = append(internalRS.ScopeSpans, internalSS)
		}

		internalReq.ResourceSpans = append(internalReq.ResourceSpans, internalRS)
	}

	return internalReq
}

func convertProtoKeyValue(attr *commonpb.KeyValue) codec.KeyValue {
	kv := codec.KeyValue{Key: attr.Key}
	if attr.Value == nil {
		return kv
	}
	switch v := attr.Value.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		s := v.StringValue
		kv.Value.StringValue = &s
	case *commonpb.AnyValue_BoolValue:
		b := v.BoolValue
		kv.Value.BoolValue = &b
	case *commonpb.AnyValue_IntValue:
		s := strconv.FormatInt(v.IntValue, 10)
		kv.Value.IntValue = &s
	case *commonpb.AnyValue_DoubleValue:
		d := v.DoubleValue
		kv.Value.DoubleValue = &d
	}
	return kv
}
