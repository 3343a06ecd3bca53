package apm

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// ProjectRepository persists and queries projects.
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

const selectProjectColumns = `SELECT id, name, slug, api_key, created_at FROM projects`

func scanProject(row interface{ Scan(...interface{}) error }) (*apmDomain.Project, error) {
	p := &apmDomain.Project{}
	var idStr string
	if err := row.Scan(&idStr, &p.Name, &p.Slug, &p.APIKey, &p.CreatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (r *ProjectRepository) Create(ctx context.Context, p *apmDomain.Project) error {
	if p.ID.IsZero() {
		p.ID = ulid.New()
	}
	return r.getDB(ctx).WithContext(ctx).Exec(`
		INSERT INTO projects (id, name, slug, api_key, created_at) VALUES (?, ?, ?, ?, ?)
	`, p.ID.String(), p.Name, p.Slug, p.APIKey, p.CreatedAt).Error
}

func (r *ProjectRepository) GetByAPIKey(ctx context.Context, key string) (*apmDomain.Project, error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(selectProjectColumns+" WHERE api_key = ?", key).Row()
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *ProjectRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Raw("SELECT COUNT(*) FROM projects").Scan(&count).Error
	return count, err
}

// GetDefault returns the single project row used when multi-project scoping
// is disabled.
func (r *ProjectRepository) GetDefault(ctx context.Context) (*apmDomain.Project, error) {
	row := r.getDB(ctx).WithContext(ctx).Raw(selectProjectColumns + " ORDER BY created_at ASC LIMIT 1").Row()
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}
