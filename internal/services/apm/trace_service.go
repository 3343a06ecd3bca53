package apm

import (
	"context"
	"sort"

	"brokle/internal/core/apm/classify"
	"brokle/internal/core/apm/sqlnorm"
	apmDomain "brokle/internal/core/domain/apm"
)

// traceService serves trace lookups and listings (C8).
type traceService struct {
	spans apmDomain.SpanRepository
}

func newTraceService(spans apmDomain.SpanRepository) *traceService {
	return &traceService{spans: spans}
}

// GetTrace loads every span for traceID and computes the depth-annotated
// waterfall. A trace with no spans is a not-found condition surfaced as a
// nil result rather than an error (§7).
func (s *traceService) GetTrace(ctx context.Context, traceID string) (*apmDomain.TraceView, error) {
	spans, err := s.spans.ListByTrace(ctx, traceID)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list spans for trace", err)
	}
	if len(spans) == 0 {
		return nil, nil
	}

	traceStart := spans[0].StartTimeUnixNano
	traceEnd := spans[0].EndTimeUnixNano
	byID := make(map[string]*apmDomain.Span, len(spans))
	for _, sp := range spans {
		if sp.StartTimeUnixNano < traceStart {
			traceStart = sp.StartTimeUnixNano
		}
		if sp.EndTimeUnixNano > traceEnd {
			traceEnd = sp.EndTimeUnixNano
		}
		byID[sp.SpanID] = sp
	}

	totalDurationMs := float64(traceEnd-traceStart) / 1e6

	depths := make(map[string]int, len(spans))
	for _, sp := range spans {
		resolveDepth(sp, byID, depths)
	}

	views := make([]*apmDomain.SpanView, 0, len(spans))
	var root *apmDomain.Span
	for _, sp := range spans {
		offsetMs := float64(sp.StartTimeUnixNano-traceStart) / 1e6

		var offsetPercent, widthPercent float64
		if totalDurationMs > 0 {
			offsetPercent = offsetMs / totalDurationMs * 100
			widthPercent = float64(sp.DurationMs) / totalDurationMs * 100
		} else {
			widthPercent = 100
		}

		views = append(views, &apmDomain.SpanView{
			Span:          *sp,
			Depth:         depths[sp.SpanID],
			OffsetMs:      offsetMs,
			OffsetPercent: offsetPercent,
			WidthPercent:  widthPercent,
		})

		if depths[sp.SpanID] == 0 {
			if root == nil || sp.StartTimeUnixNano < root.StartTimeUnixNano ||
				(sp.StartTimeUnixNano == root.StartTimeUnixNano && sp.SpanID < root.SpanID) {
				root = sp
			}
		}
	}

	view := &apmDomain.TraceView{
		TraceID:         traceID,
		StartedAt:       traceStart,
		TotalDurationMs: totalDurationMs,
		Spans:           views,
	}
	if root != nil {
		view.RootSpanID = root.SpanID
	}
	return view, nil
}

// resolveDepth computes depth(span) = depth(parent)+1, walking the parent
// chain iteratively with a visited set so a pathological (cyclic) chain
// yields depth=0 at the span whose parent would close the cycle instead of
// recursing forever.
func resolveDepth(span *apmDomain.Span, byID map[string]*apmDomain.Span, memo map[string]int) int {
	if d, ok := memo[span.SpanID]; ok {
		return d
	}

	visited := map[string]bool{span.SpanID: true}
	chain := []string{span.SpanID}
	cur := span

	for {
		if cur.ParentSpanID == nil || *cur.ParentSpanID == "" {
			break
		}
		parent, ok := byID[*cur.ParentSpanID]
		if !ok {
			break
		}
		if d, ok := memo[parent.SpanID]; ok {
			base := d
			for i := len(chain) - 1; i >= 0; i-- {
				base++
				memo[chain[i]] = base
			}
			return memo[span.SpanID]
		}
		if visited[parent.SpanID] {
			break
		}
		visited[parent.SpanID] = true
		chain = append(chain, parent.SpanID)
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if i == len(chain)-1 {
			memo[chain[i]] = 0
		} else {
			memo[chain[i]] = memo[chain[i+1]] + 1
		}
	}
	return memo[span.SpanID]
}

func (s *traceService) ListTraces(ctx context.Context, f apmDomain.TraceFilter) ([]*apmDomain.TraceListItem, error) {
	roots, err := s.spans.ListRootsPaginated(ctx, f)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list root spans", err)
	}

	items := make([]*apmDomain.TraceListItem, 0, len(roots))
	for _, root := range roots {
		spanCount, err := s.spans.CountByTrace(ctx, root.TraceID)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to count spans for trace", err)
		}
		items = append(items, &apmDomain.TraceListItem{Span: *root, SpanCount: spanCount})
	}

	if f.Sort == "spans" {
		sort.SliceStable(items, func(i, j int) bool { return items[i].SpanCount > items[j].SpanCount })
	}

	return items, nil
}

// DetectNPlusOne groups the trace's db spans by normalized SQL pattern and
// reports every pattern repeated at least NPlusOneThreshold times.
func (s *traceService) DetectNPlusOne(ctx context.Context, traceID string) ([]apmDomain.NPlusOneIssue, error) {
	spans, err := s.spans.ListByTrace(ctx, traceID)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list spans for trace", err)
	}

	type group struct {
		count       int
		sumDuration int64
		spanIDs     []string
	}
	byPattern := make(map[string]*group)
	var order []string

	for _, sp := range spans {
		if sp.Category != classify.CategoryDB || sp.DBStatement == "" {
			continue
		}
		pattern := sqlnorm.Normalize(sp.DBStatement)
		g, ok := byPattern[pattern]
		if !ok {
			g = &group{}
			byPattern[pattern] = g
			order = append(order, pattern)
		}
		g.count++
		g.sumDuration += sp.DurationMs
		g.spanIDs = append(g.spanIDs, sp.SpanID)
	}

	var issues []apmDomain.NPlusOneIssue
	for _, pattern := range order {
		g := byPattern[pattern]
		if g.count < apmDomain.NPlusOneThreshold {
			continue
		}
		issues = append(issues, apmDomain.NPlusOneIssue{
			Pattern:     pattern,
			Count:       g.count,
			SumDuration: g.sumDuration,
			SpanIDs:     g.spanIDs,
		})
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Count > issues[j].Count })

	return issues, nil
}
