package apm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle/internal/core/apm/classify"
	apmDomain "brokle/internal/core/domain/apm"
)

func strp(s string) *string { return &s }

// S7 (trace waterfall).
func TestGetTrace_S7(t *testing.T) {
	repo := &fakeSpanRepository{}
	svc := newTraceService(repo)

	root := &apmDomain.Span{
		TraceID: "t1", SpanID: "root", StartTimeUnixNano: 0, EndTimeUnixNano: 100_000_000, DurationMs: 100,
	}
	a := &apmDomain.Span{
		TraceID: "t1", SpanID: "a", ParentSpanID: strp("root"),
		StartTimeUnixNano: 10_000_000, EndTimeUnixNano: 40_000_000, DurationMs: 30,
	}
	b := &apmDomain.Span{
		TraceID: "t1", SpanID: "b", ParentSpanID: strp("a"),
		StartTimeUnixNano: 50_000_000, EndTimeUnixNano: 70_000_000, DurationMs: 20,
	}
	repo.spans = []*apmDomain.Span{root, a, b}

	view, err := svc.GetTrace(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, "root", view.RootSpanID)
	assert.Equal(t, 100.0, view.TotalDurationMs)

	byID := map[string]*apmDomain.SpanView{}
	for _, sv := range view.Spans {
		byID[sv.SpanID] = sv
	}

	assert.Equal(t, 0, byID["root"].Depth)
	assert.Equal(t, 1, byID["a"].Depth)
	assert.Equal(t, 2, byID["b"].Depth)

	assert.InDelta(t, 10.0, byID["a"].OffsetPercent, 0.001)
	assert.InDelta(t, 30.0, byID["a"].WidthPercent, 0.001)
	assert.InDelta(t, 50.0, byID["b"].OffsetPercent, 0.001)
	assert.InDelta(t, 20.0, byID["b"].WidthPercent, 0.001)
}

func TestGetTrace_NotFound(t *testing.T) {
	svc := newTraceService(&fakeSpanRepository{})
	view, err := svc.GetTrace(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, view)
}

// P3: exactly one depth-0 record; depth(span) = depth(parent)+1.
func TestGetTrace_DepthCyclicGuard(t *testing.T) {
	repo := &fakeSpanRepository{}
	svc := newTraceService(repo)

	x := &apmDomain.Span{TraceID: "t2", SpanID: "x", ParentSpanID: strp("y"), StartTimeUnixNano: 0, EndTimeUnixNano: 10_000_000, DurationMs: 10}
	y := &apmDomain.Span{TraceID: "t2", SpanID: "y", ParentSpanID: strp("x"), StartTimeUnixNano: 1, EndTimeUnixNano: 10_000_001, DurationMs: 10}
	repo.spans = []*apmDomain.Span{x, y}

	view, err := svc.GetTrace(context.Background(), "t2")
	require.NoError(t, err)
	require.NotNil(t, view)

	zeroDepthCount := 0
	for _, sv := range view.Spans {
		if sv.Depth == 0 {
			zeroDepthCount++
		}
	}
	assert.Equal(t, 1, zeroDepthCount)
}

// S5 (N+1).
func TestDetectNPlusOne_S5(t *testing.T) {
	repo := &fakeSpanRepository{}
	svc := newTraceService(repo)

	var spans []*apmDomain.Span
	for i := 0; i < 6; i++ {
		spans = append(spans, &apmDomain.Span{
			TraceID: "t3", SpanID: string(rune('a' + i)), Category: classify.CategoryDB,
			DBStatement: "SELECT * FROM users WHERE id = " + string(rune('0'+i)),
			DurationMs:  5,
		})
	}
	repo.spans = spans

	issues, err := svc.DetectNPlusOne(context.Background(), "t3")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 6, issues[0].Count)
	assert.Len(t, issues[0].SpanIDs, 6)
}

// P9: fewer than 5 never appears, >= 5 always does.
func TestDetectNPlusOne_Threshold(t *testing.T) {
	repo := &fakeSpanRepository{}
	svc := newTraceService(repo)

	var spans []*apmDomain.Span
	for i := 0; i < 4; i++ {
		spans = append(spans, &apmDomain.Span{
			TraceID: "t4", SpanID: string(rune('a' + i)), Category: classify.CategoryDB,
			DBStatement: "SELECT * FROM posts WHERE id = " + string(rune('0'+i)),
		})
	}
	repo.spans = spans

	issues, err := svc.DetectNPlusOne(context.Background(), "t4")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestListTraces_SpanCount(t *testing.T) {
	repo := &fakeSpanRepository{}
	svc := newTraceService(repo)

	root := &apmDomain.Span{TraceID: "t5", SpanID: "root", ProjectID: "p1"}
	child := &apmDomain.Span{TraceID: "t5", SpanID: "c1", ParentSpanID: strp("root"), ProjectID: "p1"}
	repo.spans = []*apmDomain.Span{root, child}

	items, err := svc.ListTraces(context.Background(), apmDomain.TraceFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].SpanCount)
}
