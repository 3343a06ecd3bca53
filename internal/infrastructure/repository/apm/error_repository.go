package apm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// ErrorGroupRepository persists and queries error groups and occurrences.
type ErrorGroupRepository struct {
	db *gorm.DB
}

func NewErrorGroupRepository(db *gorm.DB) *ErrorGroupRepository {
	return &ErrorGroupRepository{db: db}
}

func (r *ErrorGroupRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

const selectErrorGroupColumns = `
	SELECT id, project_id, fingerprint, exception_class, message,
	       first_seen, last_seen, occurrence_count, status
	FROM error_groups`

func scanErrorGroup(row interface{ Scan(...interface{}) error }) (*apmDomain.ErrorGroup, error) {
	g := &apmDomain.ErrorGroup{}
	var status string
	if err := row.Scan(&g.ID, &g.ProjectID, &g.Fingerprint, &g.ExceptionClass, &g.Message,
		&g.FirstSeen, &g.LastSeen, &g.OccurrenceCount, &status); err != nil {
		return nil, err
	}
	g.Status = apmDomain.ErrorStatus(status)
	return g, nil
}

func (r *ErrorGroupRepository) GetByFingerprint(ctx context.Context, projectID, fingerprint string) (*apmDomain.ErrorGroup, error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(selectErrorGroupColumns+" WHERE project_id = ? AND fingerprint = ?", projectID, fingerprint).Row()
	g, err := scanErrorGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (r *ErrorGroupRepository) GetByID(ctx context.Context, id ulid.ULID) (*apmDomain.ErrorGroup, error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(selectErrorGroupColumns+" WHERE id = ?", id.String()).Row()
	g, err := scanErrorGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (r *ErrorGroupRepository) Create(ctx context.Context, g *apmDomain.ErrorGroup) error {
	if g.ID.IsZero() {
		g.ID = ulid.New()
	}
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO error_groups (id, project_id, fingerprint, exception_class, message, first_seen, last_seen, occurrence_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID.String(), g.ProjectID, g.Fingerprint, g.ExceptionClass, g.Message,
		g.FirstSeen, g.LastSeen, g.OccurrenceCount, string(g.Status)).Error
}

// IncrementAndTouch always bumps occurrence_count, since every call has a
// matching row inserted into error_occurrences in the same transaction.
// last_seen only ever moves forward: a late-arriving occurrence (clock skew,
// backfill) still counts, but can't rewind the group's last-seen time.
func (r *ErrorGroupRepository) IncrementAndTouch(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.getDB(ctx).WithContext(ctx).Exec(`
		UPDATE error_groups
		SET occurrence_count = occurrence_count + 1,
		    last_seen = MAX(last_seen, ?)
		WHERE id = ?
	`, at, id.String()).Error
}

// ListFiltered lists error groups matching f, ordered per f.SortBy.
func (r *ErrorGroupRepository) ListFiltered(ctx context.Context, f apmDomain.ErrorFilter) ([]*apmDomain.ErrorGroup, error) {
	where := []string{"project_id = ?"}
	args := []interface{}{f.ProjectID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Since != nil {
		where = append(where, "last_seen >= ?")
		args = append(args, *f.Since)
	}
	if f.Search != "" {
		where = append(where, "(exception_class LIKE ? OR message LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}

	order := "last_seen DESC"
	switch f.SortBy {
	case "first_seen":
		order = "first_seen DESC"
	case "count":
		order = "occurrence_count DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		selectErrorGroupColumns, strings.Join(where, " AND "), order)
	args = append(args, limit, f.Offset)

	rows, err := r.getDB(ctx).WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("list error groups: %w", err)
	}
	defer rows.Close()

	var out []*apmDomain.ErrorGroup
	for rows.Next() {
		g, err := scanErrorGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *ErrorGroupRepository) InsertOccurrence(ctx context.Context, occ *apmDomain.ErrorOccurrence) error {
	if occ.ID.IsZero() {
		occ.ID = ulid.New()
	}
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO error_occurrences (
			id, error_group_id, project_id, backtrace_json, request_id, user_id,
			params_json, source_file, source_line, source_pre, source_context, source_post, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, occ.ID.String(), occ.ErrorGroupID.String(), occ.ProjectID, occ.BacktraceJSON, occ.RequestID, occ.UserID,
		occ.ParamsJSON, occ.SourceFile, occ.SourceLine, occ.SourcePre, occ.SourceContext, occ.SourcePost, occ.Timestamp).Error
}

func (r *ErrorGroupRepository) ListOccurrences(ctx context.Context, groupID ulid.ULID, limit int) ([]*apmDomain.ErrorOccurrence, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT id, error_group_id, project_id, backtrace_json, request_id, user_id,
		       params_json, source_file, source_line, source_pre, source_context, source_post, timestamp
		FROM error_occurrences WHERE error_group_id = ? ORDER BY timestamp DESC LIMIT ?
	`, groupID.String(), limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var out []*apmDomain.ErrorOccurrence
	for rows.Next() {
		o := &apmDomain.ErrorOccurrence{}
		var groupIDStr, idStr string
		if err := rows.Scan(&idStr, &groupIDStr, &o.ProjectID, &o.BacktraceJSON, &o.RequestID, &o.UserID,
			&o.ParamsJSON, &o.SourceFile, &o.SourceLine, &o.SourcePre, &o.SourceContext, &o.SourcePost, &o.Timestamp); err != nil {
			return nil, err
		}
		if o.ID, err = ulid.Parse(idStr); err != nil {
			return nil, err
		}
		if o.ErrorGroupID, err = ulid.Parse(groupIDStr); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *ErrorGroupRepository) HourlyStats(ctx context.Context, projectID string, hours int) ([]apmDomain.HourlyCount, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT strftime('%Y-%m-%dT%H:00:00Z', eo.timestamp) AS hour, COUNT(*)
		FROM error_occurrences eo WHERE eo.project_id = ? AND eo.timestamp >= ?
		GROUP BY hour ORDER BY hour ASC
	`, projectID, since).Rows()
	if err != nil {
		return nil, fmt.Errorf("hourly error stats: %w", err)
	}
	defer rows.Close()

	var out []apmDomain.HourlyCount
	for rows.Next() {
		var hourStr string
		var hc apmDomain.HourlyCount
		if err := rows.Scan(&hourStr, &hc.Count); err != nil {
			return nil, err
		}
		if hc.Hour, err = time.Parse(time.RFC3339, hourStr); err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// OccurrenceCountsByHour gives the 24h trend sparkline for a single group.
func (r *ErrorGroupRepository) OccurrenceCountsByHour(ctx context.Context, groupID ulid.ULID, since time.Time) ([]apmDomain.HourlyCount, error) {
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(`
		SELECT strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour, COUNT(*)
		FROM error_occurrences WHERE error_group_id = ? AND timestamp >= ?
		GROUP BY hour ORDER BY hour ASC
	`, groupID.String(), since.UTC()).Rows()
	if err != nil {
		return nil, fmt.Errorf("occurrence counts by hour: %w", err)
	}
	defer rows.Close()

	var out []apmDomain.HourlyCount
	for rows.Next() {
		var hourStr string
		var hc apmDomain.HourlyCount
		if err := rows.Scan(&hourStr, &hc.Count); err != nil {
			return nil, err
		}
		if hc.Hour, err = time.Parse(time.RFC3339, hourStr); err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

func (r *ErrorGroupRepository) DeleteOccurrencesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.getDB(ctx).WithContext(ctx).Exec("DELETE FROM error_occurrences WHERE timestamp < ?", cutoff.UTC())
	return result.RowsAffected, result.Error
}
