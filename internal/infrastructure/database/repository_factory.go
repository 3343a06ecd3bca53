package database

import (
	"gorm.io/gorm"

	"brokle/internal/core/domain/apm"
	apmRepo "brokle/internal/infrastructure/repository/apm"
)

// RepositoryFactory lazily constructs and caches the apm domain's
// repository implementations over a single *gorm.DB.
type RepositoryFactory struct {
	db *gorm.DB

	spanRepo       apm.SpanRepository
	errorGroupRepo apm.ErrorGroupRepository
	deployRepo     apm.DeployRepository
	projectRepo    apm.ProjectRepository
	rollupRepo     apm.RollupRepository
}

// NewRepositoryFactory creates a factory bound to db. Passing a transaction
// (as produced by shared.GetDB) scopes every returned repository to it.
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{db: db}
}

func (f *RepositoryFactory) SpanRepository() apm.SpanRepository {
	if f.spanRepo == nil {
		f.spanRepo = apmRepo.NewSpanRepository(f.db)
	}
	return f.spanRepo
}

func (f *RepositoryFactory) ErrorGroupRepository() apm.ErrorGroupRepository {
	if f.errorGroupRepo == nil {
		f.errorGroupRepo = apmRepo.NewErrorGroupRepository(f.db)
	}
	return f.errorGroupRepo
}

func (f *RepositoryFactory) DeployRepository() apm.DeployRepository {
	if f.deployRepo == nil {
		f.deployRepo = apmRepo.NewDeployRepository(f.db)
	}
	return f.deployRepo
}

func (f *RepositoryFactory) ProjectRepository() apm.ProjectRepository {
	if f.projectRepo == nil {
		f.projectRepo = apmRepo.NewProjectRepository(f.db)
	}
	return f.projectRepo
}

func (f *RepositoryFactory) RollupRepository() apm.RollupRepository {
	if f.rollupRepo == nil {
		f.rollupRepo = apmRepo.NewRollupRepository(f.db)
	}
	return f.rollupRepo
}
