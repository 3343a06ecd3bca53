package apm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// DeployRepository persists and queries deploy markers.
type DeployRepository struct {
	db *gorm.DB
}

func NewDeployRepository(db *gorm.DB) *DeployRepository {
	return &DeployRepository{db: db}
}

func (r *DeployRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

func (r *DeployRepository) Create(ctx context.Context, d *apmDomain.Deploy) error {
	if d.ID.IsZero() {
		d.ID = ulid.New()
	}
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO deploys (id, project_id, git_sha, version, env, timestamp, description, deployer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID.String(), d.ProjectID, d.GitSHA, d.Version, d.Env, d.Timestamp, d.Description, d.Deployer).Error
}

const selectDeployColumns = `SELECT id, project_id, git_sha, version, env, timestamp, description, deployer FROM deploys`

func scanDeploy(row interface{ Scan(...interface{}) error }) (*apmDomain.Deploy, error) {
	d := &apmDomain.Deploy{}
	var idStr string
	if err := row.Scan(&idStr, &d.ProjectID, &d.GitSHA, &d.Version, &d.Env, &d.Timestamp, &d.Description, &d.Deployer); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

func (r *DeployRepository) List(ctx context.Context, projectID string, limit int) ([]*apmDomain.Deploy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.getDB(ctx).WithContext(ctx).Raw(
		selectDeployColumns+" WHERE project_id = ? ORDER BY timestamp DESC LIMIT ?", projectID, limit,
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("list deploys: %w", err)
	}
	defer rows.Close()

	var out []*apmDomain.Deploy
	for rows.Next() {
		d, err := scanDeploy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DeployRepository) Latest(ctx context.Context, projectID string) (*apmDomain.Deploy, error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(
		selectDeployColumns+" WHERE project_id = ? ORDER BY timestamp DESC LIMIT 1", projectID,
	).Row()
	d, err := scanDeploy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// DeleteOlderThan removes deploy markers older than cutoff. The caller
// always passes now minus apm.DeployRetention: retention for deploys is
// fixed, not configurable.
func (r *DeployRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.getDB(ctx).WithContext(ctx).Exec("DELETE FROM deploys WHERE timestamp < ?", cutoff.UTC())
	return result.RowsAffected, result.Error
}
