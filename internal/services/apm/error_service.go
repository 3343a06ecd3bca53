package apm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"brokle/internal/core/apm/fingerprint"
	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

// errorService inserts/merges error occurrences into groups and serves
// error reads (C7).
type errorService struct {
	groups     apmDomain.ErrorGroupRepository
	transactor Transactor
	logger     *slog.Logger
}

func newErrorService(groups apmDomain.ErrorGroupRepository, transactor Transactor, logger *slog.Logger) *errorService {
	return &errorService{groups: groups, transactor: transactor, logger: logger}
}

// IngestError resolves in to an error group (exact fingerprint match, else
// location+similarity match, else a new group) and appends an occurrence.
//
// error_groups carries UNIQUE(project_id, fingerprint), so the location
// fingerprint L in step 3 can only ever resolve to zero or one existing
// row, never a list of candidates to pick among. When that row exists but
// its message similarity falls below the grouping threshold, there is no
// second row this occurrence could create with the same fingerprint; it
// is merged into the existing group anyway rather than erroring, which
// keeps grouping coarser than ideal in that rare case but never violates
// the constraint (see the "Ordering" discussion of racing fingerprint
// inserts, which accepts the same kind of imprecision).
func (s *errorService) IngestError(ctx context.Context, projectID string, in *apmDomain.IncomingError) (ulid.ULID, error) {
	now := time.Now().UTC()
	at := now
	if in.Timestamp != nil {
		at = in.Timestamp.UTC()
	}

	if in.ExceptionClass == "" {
		return ulid.ULID{}, apmDomain.NewError(apmDomain.KindInvalidInput, "exception_class is required")
	}

	var groupID ulid.ULID

	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		group, err := s.resolveGroup(ctx, projectID, in, at)
		if err != nil {
			return err
		}
		groupID = group.ID

		backtraceJSON, err := json.Marshal(in.Backtrace)
		if err != nil {
			return apmDomain.WrapError(apmDomain.KindInvalidInput, "failed to serialize backtrace", err)
		}
		var paramsJSON []byte
		if in.Params != nil {
			if paramsJSON, err = json.Marshal(in.Params); err != nil {
				return apmDomain.WrapError(apmDomain.KindInvalidInput, "failed to serialize params", err)
			}
		}

		occ := &apmDomain.ErrorOccurrence{
			ErrorGroupID:  group.ID,
			ProjectID:     projectID,
			BacktraceJSON: string(backtraceJSON),
			RequestID:     in.RequestID,
			UserID:        in.UserID,
			ParamsJSON:    string(paramsJSON),
			Timestamp:     at,
		}
		if in.SourceContext != nil {
			occ.SourceFile = in.SourceContext.File
			occ.SourceLine = in.SourceContext.Lineno
			occ.SourcePre = joinLines(in.SourceContext.Pre)
			occ.SourceContext = joinLines(in.SourceContext.Context)
			occ.SourcePost = joinLines(in.SourceContext.Post)
		}

		if err := s.groups.InsertOccurrence(ctx, occ); err != nil {
			return apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to insert error occurrence", err)
		}
		return nil
	})
	if err != nil {
		return ulid.ULID{}, err
	}

	return groupID, nil
}

// resolveGroup finds or creates the group this occurrence belongs to, and
// touches its last_seen/occurrence_count in the process.
func (s *errorService) resolveGroup(ctx context.Context, projectID string, in *apmDomain.IncomingError, at time.Time) (*apmDomain.ErrorGroup, error) {
	locationFP := fingerprint.LocationFingerprint(in.ExceptionClass, in.Backtrace)

	if in.Fingerprint != "" {
		group, err := s.groups.GetByFingerprint(ctx, projectID, in.Fingerprint)
		if err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to look up error group by fingerprint", err)
		}
		if group != nil {
			if err := s.groups.IncrementAndTouch(ctx, group.ID, at); err != nil {
				return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to touch error group", err)
			}
			return group, nil
		}
	}

	candidate, err := s.groups.GetByFingerprint(ctx, projectID, locationFP)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to look up error group by location fingerprint", err)
	}
	if candidate != nil {
		sim := fingerprint.Similarity(in.Message, candidate.Message)
		if sim < fingerprint.SimilarityThreshold {
			s.logger.Debug("error message similarity below threshold; merging into existing group anyway",
				"project_id", projectID, "fingerprint", locationFP, "similarity", sim)
		}
		if err := s.groups.IncrementAndTouch(ctx, candidate.ID, at); err != nil {
			return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to touch error group", err)
		}
		return candidate, nil
	}

	newGroup := &apmDomain.ErrorGroup{
		ID:              ulid.New(),
		ProjectID:       projectID,
		Fingerprint:     locationFP,
		ExceptionClass:  in.ExceptionClass,
		Message:         in.Message,
		FirstSeen:       at,
		LastSeen:        at,
		OccurrenceCount: 1,
		Status:          apmDomain.ErrorStatusOpen,
	}
	if err := s.groups.Create(ctx, newGroup); err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to create error group", err)
	}
	return newGroup, nil
}

func joinLines(lines []string) string {
	b, _ := json.Marshal(lines)
	return string(b)
}

// IngestErrorsBatch ingests each item independently; one item's failure
// does not abort the rest.
func (s *errorService) IngestErrorsBatch(ctx context.Context, projectID string, in []*apmDomain.IncomingError) (succeeded, failed int) {
	for _, item := range in {
		if _, err := s.IngestError(ctx, projectID, item); err != nil {
			s.logger.Warn("failed to ingest error in batch", "project_id", projectID, "error", err)
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

func (s *errorService) ListErrors(ctx context.Context, f apmDomain.ErrorFilter) ([]*apmDomain.ErrorGroup, error) {
	groups, err := s.groups.ListFiltered(ctx, f)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list error groups", err)
	}
	return groups, nil
}

func (s *errorService) GetError(ctx context.Context, id ulid.ULID) (*apmDomain.ErrorGroup, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get error group", err)
	}
	return group, nil
}

func (s *errorService) ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*apmDomain.ErrorOccurrence, error) {
	occs, err := s.groups.ListOccurrences(ctx, groupID, limit)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list error occurrences", err)
	}
	return occs, nil
}

func (s *errorService) HourlyErrorStats(ctx context.Context, projectID string, hours int) ([]apmDomain.HourlyCount, error) {
	stats, err := s.groups.HourlyStats(ctx, projectID, hours)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get hourly error stats", err)
	}
	return zeroFillHourly(stats, hours), nil
}

// ErrorTrend24h returns exactly 24 buckets, zero-filled, aligned so index
// 0 is 23 hours ago and index 23 is the current hour.
func (s *errorService) ErrorTrend24h(ctx context.Context, groupID ulid.ULID) ([24]int64, error) {
	var trend [24]int64

	now := time.Now().UTC()
	currentHour := now.Truncate(time.Hour)
	since := currentHour.Add(-23 * time.Hour)

	counts, err := s.groups.OccurrenceCountsByHour(ctx, groupID, since)
	if err != nil {
		return trend, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get error trend", err)
	}

	for _, c := range counts {
		idx := int(c.Hour.Truncate(time.Hour).Sub(since) / time.Hour)
		if idx >= 0 && idx < 24 {
			trend[idx] = c.Count
		}
	}

	return trend, nil
}

// zeroFillHourly fills in missing hourly buckets (going back `hours` hours
// from now) with zero-count entries, so chart consumers get a dense
// series without special-casing gaps.
func zeroFillHourly(sparse []apmDomain.HourlyCount, hours int) []apmDomain.HourlyCount {
	if hours <= 0 {
		return sparse
	}

	byHour := make(map[int64]apmDomain.HourlyCount, len(sparse))
	for _, hc := range sparse {
		byHour[hc.Hour.Truncate(time.Hour).Unix()] = hc
	}

	now := time.Now().UTC()
	currentHour := now.Truncate(time.Hour)
	start := currentHour.Add(-time.Duration(hours-1) * time.Hour)

	out := make([]apmDomain.HourlyCount, 0, hours)
	for i := 0; i < hours; i++ {
		h := start.Add(time.Duration(i) * time.Hour)
		if hc, ok := byHour[h.Unix()]; ok {
			out = append(out, hc)
		} else {
			out = append(out, apmDomain.HourlyCount{Hour: h})
		}
	}
	return out
}
