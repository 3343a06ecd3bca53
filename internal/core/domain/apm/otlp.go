package apm

import "brokle/internal/core/apm/codec"

// OTLPRequest is the OTLP-JSON trace request shape accepted by the ingest
// endpoint.
type OTLPRequest struct {
	ResourceSpans []OTLPResourceSpans `json:"resourceSpans"`
}

type OTLPResourceSpans struct {
	Resource   OTLPResource       `json:"resource"`
	ScopeSpans []OTLPScopeSpans   `json:"scopeSpans"`
}

type OTLPResource struct {
	Attributes []codec.KeyValue `json:"attributes"`
}

type OTLPScopeSpans struct {
	Scope OTLPScope   `json:"scope"`
	Spans []OTLPSpan  `json:"spans"`
}

type OTLPScope struct {
	Name       string           `json:"name"`
	Version    string           `json:"version"`
	Attributes []codec.KeyValue `json:"attributes"`
}

type OTLPSpan struct {
	TraceID           string           `json:"traceId"`
	SpanID            string           `json:"spanId"`
	ParentSpanID      string           `json:"parentSpanId,omitempty"`
	Name              string           `json:"name"`
	Kind              int              `json:"kind"`
	StartTimeUnixNano string           `json:"startTimeUnixNano"`
	EndTimeUnixNano   string           `json:"endTimeUnixNano"`
	Attributes        []codec.KeyValue `json:"attributes"`
	Status            *OTLPStatus      `json:"status,omitempty"`
	Events            []OTLPEvent      `json:"events,omitempty"`
}

type OTLPStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type OTLPEvent struct {
	Name              string           `json:"name"`
	TimeUnixNano      string           `json:"timeUnixNano"`
	Attributes        []codec.KeyValue `json:"attributes"`
}
