package apm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle/internal/core/apm/classify"
	"brokle/internal/core/apm/codec"
	apmDomain "brokle/internal/core/domain/apm"
)

func kv(key, value string) codec.KeyValue {
	return codec.KeyValue{Key: key, Value: codec.Value{StringValue: &value}}
}

// S2 (root type): a root http_server span gets root_span_type=web; a
// non-root copy of the same span gets none.
func TestIngestSpans_S2(t *testing.T) {
	spanRepo := &fakeSpanRepository{}
	errRepo := &fakeErrorGroupRepository{}
	errSvc := newErrorService(errRepo, fakeTransactor{}, testLogger())
	ingestSvc := newIngestionService(spanRepo, errSvc, testLogger())

	req := &apmDomain.OTLPRequest{
		ResourceSpans: []apmDomain.OTLPResourceSpans{{
			ScopeSpans: []apmDomain.OTLPScopeSpans{{
				Spans: []apmDomain.OTLPSpan{
					{
						TraceID: "aabbccdd00112233aabbccdd00112233", SpanID: "aabbccdd00112233",
						Name: "GET /", Kind: classify.KindServer,
						StartTimeUnixNano: "1000000000", EndTimeUnixNano: "1010000000",
						Attributes: []codec.KeyValue{kv("http.method", "GET")},
					},
					{
						TraceID: "aabbccdd00112233aabbccdd00112233", SpanID: "1122334455667788",
						ParentSpanID: "aabbccdd00112233",
						Name:         "GET /", Kind: classify.KindServer,
						StartTimeUnixNano: "1001000000", EndTimeUnixNano: "1005000000",
						Attributes: []codec.KeyValue{kv("http.method", "GET")},
					},
				},
			}},
		}},
	}

	n, err := ingestSvc.IngestSpans(context.Background(), "p1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, spanRepo.spans, 2)

	var root, child *apmDomain.Span
	for _, s := range spanRepo.spans {
		if s.IsRoot() {
			root = s
		} else {
			child = s
		}
	}
	require.NotNil(t, root)
	require.NotNil(t, child)

	assert.Equal(t, classify.CategoryHTTPServer, root.Category)
	require.NotNil(t, root.RootSpanType)
	assert.Equal(t, classify.RootTypeWeb, *root.RootSpanType)
	assert.Nil(t, child.RootSpanType)
}

func TestIngestSpans_InvalidTimestampAbortsBatch(t *testing.T) {
	spanRepo := &fakeSpanRepository{}
	errSvc := newErrorService(&fakeErrorGroupRepository{}, fakeTransactor{}, testLogger())
	ingestSvc := newIngestionService(spanRepo, errSvc, testLogger())

	req := &apmDomain.OTLPRequest{
		ResourceSpans: []apmDomain.OTLPResourceSpans{{
			ScopeSpans: []apmDomain.OTLPScopeSpans{{
				Spans: []apmDomain.OTLPSpan{{
					TraceID: "aabbccdd00112233aabbccdd00112233", SpanID: "aabbccdd00112233",
					Name: "broken", StartTimeUnixNano: "not-a-number", EndTimeUnixNano: "1",
				}},
			}},
		}},
	}

	_, err := ingestSvc.IngestSpans(context.Background(), "p1", req)
	require.Error(t, err)

	var apmErr *apmDomain.Error
	require.ErrorAs(t, err, &apmErr)
	assert.Equal(t, apmDomain.KindInvalidBatch, apmErr.Kind)
}

// Exception span events are extracted into a synthetic error group
// without failing the span insert.
func TestIngestSpans_ExtractsException(t *testing.T) {
	spanRepo := &fakeSpanRepository{}
	errRepo := &fakeErrorGroupRepository{}
	errSvc := newErrorService(errRepo, fakeTransactor{}, testLogger())
	ingestSvc := newIngestionService(spanRepo, errSvc, testLogger())

	req := &apmDomain.OTLPRequest{
		ResourceSpans: []apmDomain.OTLPResourceSpans{{
			ScopeSpans: []apmDomain.OTLPScopeSpans{{
				Spans: []apmDomain.OTLPSpan{{
					TraceID: "aabbccdd00112233aabbccdd00112233", SpanID: "aabbccdd00112233",
					Name: "perform", StartTimeUnixNano: "1000000000", EndTimeUnixNano: "1010000000",
					Events: []apmDomain.OTLPEvent{{
						Name:         "exception",
						TimeUnixNano: "1005000000",
						Attributes: []codec.KeyValue{
							kv("exception.type", "RuntimeError"),
							kv("exception.message", "boom"),
							kv("exception.stacktrace", "/app/jobs/worker.rb:9:in `perform'\n/app/lib/runner.rb:3"),
						},
					}},
				}},
			}},
		}},
	}

	n, err := ingestSvc.IngestSpans(context.Background(), "p1", req)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, errRepo.groups, 1)
	assert.Equal(t, "RuntimeError", errRepo.groups[0].ExceptionClass)

	// The exception event carries its own TimeUnixNano (1005000000), but
	// the occurrence must be stamped with the span's start time, not the
	// event's.
	require.Len(t, errRepo.occurrences, 1)
	assert.Equal(t, time.Unix(0, 1000000000).UTC(), errRepo.occurrences[0].Timestamp)
}
