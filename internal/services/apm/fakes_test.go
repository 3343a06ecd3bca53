package apm

import (
	"context"
	"sort"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

// fakeTransactor runs fn directly; the services package doesn't depend on
// real commit/rollback semantics to exercise its business logic.
type fakeTransactor struct{}

func (fakeTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeSpanRepository is an in-memory apmDomain.SpanRepository.
type fakeSpanRepository struct {
	spans []*apmDomain.Span
}

func (f *fakeSpanRepository) Upsert(ctx context.Context, span *apmDomain.Span) error {
	for i, s := range f.spans {
		if s.TraceID == span.TraceID && s.SpanID == span.SpanID {
			cp := *span
			f.spans[i] = &cp
			return nil
		}
	}
	cp := *span
	f.spans = append(f.spans, &cp)
	return nil
}

func (f *fakeSpanRepository) ListByTrace(ctx context.Context, traceID string) ([]*apmDomain.Span, error) {
	var out []*apmDomain.Span
	for _, s := range f.spans {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTimeUnixNano < out[j].StartTimeUnixNano })
	return out, nil
}

func (f *fakeSpanRepository) ListRootsPaginated(ctx context.Context, filter apmDomain.TraceFilter) ([]*apmDomain.Span, error) {
	var out []*apmDomain.Span
	for _, s := range f.spans {
		if !s.IsRoot() {
			continue
		}
		if filter.ProjectID != "" && s.ProjectID != filter.ProjectID {
			continue
		}
		if filter.MinDuration > 0 && s.DurationMs < filter.MinDuration {
			continue
		}
		out = append(out, s)
	}
	if filter.Sort == "duration" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].DurationMs > out[j].DurationMs })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeSpanRepository) CountByTrace(ctx context.Context, traceID string) (int64, error) {
	var n int64
	for _, s := range f.spans {
		if s.TraceID == traceID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSpanRepository) RouteGroups(ctx context.Context, projectID string, since time.Time) ([]apmDomain.RouteKey, error) {
	seen := map[apmDomain.RouteKey]bool{}
	var out []apmDomain.RouteKey
	for _, s := range f.spans {
		if s.ProjectID != projectID || s.RootSpanType == nil || *s.RootSpanType != "web" {
			continue
		}
		k := apmDomain.RouteKey{Name: s.Name, Method: s.HTTPMethod}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeSpanRepository) DurationsForRoute(ctx context.Context, projectID, name, method string, since time.Time) ([]int64, error) {
	var out []int64
	for _, s := range f.spans {
		if s.ProjectID == projectID && s.Name == name && s.HTTPMethod == method && s.IsRoot() {
			out = append(out, s.DurationMs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeSpanRepository) DBStatsForRoute(ctx context.Context, projectID, name, method string, since time.Time) (float64, float64, int64, error) {
	return 0, 0, 0, nil
}

func (f *fakeSpanRepository) ErrorCountForRoute(ctx context.Context, projectID, name, method string, since time.Time) (int64, error) {
	var n int64
	for _, s := range f.spans {
		if s.ProjectID == projectID && s.Name == name && s.HTTPMethod == method && s.IsRoot() && s.StatusCode == 2 {
			n++
		}
	}
	return n, nil
}

func (f *fakeSpanRepository) RootDurationsSince(ctx context.Context, projectID string, since time.Time) ([]int64, error) {
	var out []int64
	for _, s := range f.spans {
		if s.ProjectID == projectID && s.IsRoot() {
			out = append(out, s.DurationMs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeSpanRepository) HourlyRootCounts(ctx context.Context, projectID string, since time.Time) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}

func (f *fakeSpanRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSpanRepository) RowsForRollup(ctx context.Context, start, end time.Time) ([]*apmDomain.Span, error) {
	return nil, nil
}

// fakeErrorGroupRepository is an in-memory apmDomain.ErrorGroupRepository.
type fakeErrorGroupRepository struct {
	groups      []*apmDomain.ErrorGroup
	occurrences []*apmDomain.ErrorOccurrence
}

func (f *fakeErrorGroupRepository) GetByFingerprint(ctx context.Context, projectID, fingerprint string) (*apmDomain.ErrorGroup, error) {
	for _, g := range f.groups {
		if g.ProjectID == projectID && g.Fingerprint == fingerprint {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeErrorGroupRepository) Create(ctx context.Context, g *apmDomain.ErrorGroup) error {
	if g.ID.IsZero() {
		g.ID = ulid.New()
	}
	f.groups = append(f.groups, g)
	return nil
}

func (f *fakeErrorGroupRepository) IncrementAndTouch(ctx context.Context, id ulid.ULID, at time.Time) error {
	for _, g := range f.groups {
		if g.ID == id {
			g.OccurrenceCount++
			if at.After(g.LastSeen) {
				g.LastSeen = at
			}
		}
	}
	return nil
}

func (f *fakeErrorGroupRepository) ListFiltered(ctx context.Context, filter apmDomain.ErrorFilter) ([]*apmDomain.ErrorGroup, error) {
	return f.groups, nil
}

func (f *fakeErrorGroupRepository) GetByID(ctx context.Context, id ulid.ULID) (*apmDomain.ErrorGroup, error) {
	for _, g := range f.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeErrorGroupRepository) InsertOccurrence(ctx context.Context, occ *apmDomain.ErrorOccurrence) error {
	if occ.ID.IsZero() {
		occ.ID = ulid.New()
	}
	f.occurrences = append(f.occurrences, occ)
	return nil
}

func (f *fakeErrorGroupRepository) ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*apmDomain.ErrorOccurrence, error) {
	var out []*apmDomain.ErrorOccurrence
	for _, o := range f.occurrences {
		if o.ErrorGroupID == groupID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeErrorGroupRepository) HourlyStats(ctx context.Context, projectID string, hours int) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}

func (f *fakeErrorGroupRepository) OccurrenceCountsByHour(ctx context.Context, groupID ulid.ULID, since time.Time) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}

func (f *fakeErrorGroupRepository) DeleteOccurrencesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
