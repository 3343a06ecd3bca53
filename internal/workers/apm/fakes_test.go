package apm

import (
	"context"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

type fakeSpanRepository struct {
	spans []*apmDomain.Span
}

func (f *fakeSpanRepository) Upsert(ctx context.Context, span *apmDomain.Span) error {
	f.spans = append(f.spans, span)
	return nil
}

func (f *fakeSpanRepository) ListByTrace(ctx context.Context, traceID string) ([]*apmDomain.Span, error) {
	var out []*apmDomain.Span
	for _, s := range f.spans {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSpanRepository) ListRootsPaginated(ctx context.Context, filter apmDomain.TraceFilter) ([]*apmDomain.Span, error) {
	return nil, nil
}

func (f *fakeSpanRepository) CountByTrace(ctx context.Context, traceID string) (int64, error) {
	n, _ := f.ListByTrace(ctx, traceID)
	return int64(len(n)), nil
}

func (f *fakeSpanRepository) RouteGroups(ctx context.Context, projectID string, since time.Time) ([]apmDomain.RouteKey, error) {
	return nil, nil
}

func (f *fakeSpanRepository) DurationsForRoute(ctx context.Context, projectID, name, method string, since time.Time) ([]int64, error) {
	return nil, nil
}

func (f *fakeSpanRepository) DBStatsForRoute(ctx context.Context, projectID, name, method string, since time.Time) (float64, float64, int64, error) {
	return 0, 0, 0, nil
}

func (f *fakeSpanRepository) ErrorCountForRoute(ctx context.Context, projectID, name, method string, since time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSpanRepository) RootDurationsSince(ctx context.Context, projectID string, since time.Time) ([]int64, error) {
	return nil, nil
}

func (f *fakeSpanRepository) HourlyRootCounts(ctx context.Context, projectID string, since time.Time) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}

func (f *fakeSpanRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*apmDomain.Span
	var deleted int64
	for _, s := range f.spans {
		t, _ := time.Parse(apmDomain.SortableTimeFormat, s.HappenedAt)
		if t.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.spans = kept
	return deleted, nil
}

func (f *fakeSpanRepository) RowsForRollup(ctx context.Context, start, end time.Time) ([]*apmDomain.Span, error) {
	var out []*apmDomain.Span
	for _, s := range f.spans {
		if !s.IsRoot() {
			continue
		}
		ts := time.Unix(0, s.StartTimeUnixNano).UTC()
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeErrorGroupRepository struct {
	occurrences []*apmDomain.ErrorOccurrence
}

func (f *fakeErrorGroupRepository) GetByFingerprint(ctx context.Context, projectID, fingerprint string) (*apmDomain.ErrorGroup, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) Create(ctx context.Context, group *apmDomain.ErrorGroup) error {
	return nil
}
func (f *fakeErrorGroupRepository) IncrementAndTouch(ctx context.Context, id ulid.ULID, at time.Time) error {
	return nil
}
func (f *fakeErrorGroupRepository) ListFiltered(ctx context.Context, filter apmDomain.ErrorFilter) ([]*apmDomain.ErrorGroup, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) GetByID(ctx context.Context, id ulid.ULID) (*apmDomain.ErrorGroup, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) InsertOccurrence(ctx context.Context, occ *apmDomain.ErrorOccurrence) error {
	f.occurrences = append(f.occurrences, occ)
	return nil
}
func (f *fakeErrorGroupRepository) ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*apmDomain.ErrorOccurrence, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) HourlyStats(ctx context.Context, projectID string, hours int) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) OccurrenceCountsByHour(ctx context.Context, groupID ulid.ULID, since time.Time) ([]apmDomain.HourlyCount, error) {
	return nil, nil
}
func (f *fakeErrorGroupRepository) DeleteOccurrencesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*apmDomain.ErrorOccurrence
	var deleted int64
	for _, o := range f.occurrences {
		if o.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, o)
	}
	f.occurrences = kept
	return deleted, nil
}

type fakeRollupRepository struct {
	hourly []*apmDomain.HourlyRollup
	daily  []*apmDomain.DailyRollup
}

func (f *fakeRollupRepository) UpsertHourly(ctx context.Context, r *apmDomain.HourlyRollup) error {
	for i, existing := range f.hourly {
		if existing.ProjectID == r.ProjectID && existing.Path == r.Path && existing.Method == r.Method && existing.Hour.Equal(r.Hour) {
			f.hourly[i] = r
			return nil
		}
	}
	f.hourly = append(f.hourly, r)
	return nil
}

func (f *fakeRollupRepository) UpsertDaily(ctx context.Context, r *apmDomain.DailyRollup) error {
	f.daily = append(f.daily, r)
	return nil
}

func (f *fakeRollupRepository) HourlyOlderThan(ctx context.Context, cutoff time.Time) ([]*apmDomain.HourlyRollup, error) {
	var out []*apmDomain.HourlyRollup
	for _, h := range f.hourly {
		if h.Hour.Before(cutoff) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRollupRepository) DeleteHourlyOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*apmDomain.HourlyRollup
	var deleted int64
	for _, h := range f.hourly {
		if h.Hour.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, h)
	}
	f.hourly = kept
	return deleted, nil
}

type fakeDeployRepository struct {
	deploys []*apmDomain.Deploy
}

func (f *fakeDeployRepository) Create(ctx context.Context, d *apmDomain.Deploy) error {
	f.deploys = append(f.deploys, d)
	return nil
}
func (f *fakeDeployRepository) List(ctx context.Context, projectID string, limit int) ([]*apmDomain.Deploy, error) {
	return f.deploys, nil
}
func (f *fakeDeployRepository) Latest(ctx context.Context, projectID string) (*apmDomain.Deploy, error) {
	if len(f.deploys) == 0 {
		return nil, nil
	}
	return f.deploys[len(f.deploys)-1], nil
}
func (f *fakeDeployRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*apmDomain.Deploy
	var deleted int64
	for _, d := range f.deploys {
		if d.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	f.deploys = kept
	return deleted, nil
}

type fakeVacuumer struct {
	called bool
}

func (f *fakeVacuumer) Vacuum() error {
	f.called = true
	return nil
}
