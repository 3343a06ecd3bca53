package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"brokle/internal/config"
	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/infrastructure/database"
	apmRepo "brokle/internal/infrastructure/repository/apm"
	"brokle/internal/migration"
	apmService "brokle/internal/services/apm"
	grpcTransport "brokle/internal/transport/grpc"
	httpTransport "brokle/internal/transport/http"
	"brokle/internal/transport/http/handlers"
	"brokle/internal/transport/jsonrpc"
	workerApm "brokle/internal/workers/apm"
	"brokle/pkg/ulid"
)

// DeploymentMode selects which long-running pieces a process starts.
type DeploymentMode string

const (
	ModeServer DeploymentMode = "server"
	ModeWorker DeploymentMode = "worker"
)

// Repositories bundles the five storage repositories over the single
// embedded database.
type Repositories struct {
	Spans       apmDomain.SpanRepository
	ErrorGroups apmDomain.ErrorGroupRepository
	Deploys     apmDomain.DeployRepository
	Projects    apmDomain.ProjectRepository
	Rollups     apmDomain.RollupRepository
}

// Core holds everything both the server and worker processes share: config,
// logging, the database connection, repositories, and the service facade.
type Core struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *database.SQLiteDB
	Migration *migration.Manager
	Repos     *Repositories
	Service   apmDomain.APMService
	StartedAt time.Time
}

// ServerComponents holds the pieces only a server process runs.
type ServerComponents struct {
	HTTP *httpTransport.Server
	GRPC *grpcTransport.Server // nil if the gRPC OTLP receiver is disabled
	RPC  *jsonrpc.Server
}

// WorkerComponents holds the pieces only a worker process runs.
type WorkerComponents struct {
	Scheduler *workerApm.Scheduler
}

// provideCore opens the database, runs migrations, builds the repository
// set, and wires the service facade. Shared by NewServer and NewWorker.
func provideCore(cfg *config.Config, logger *slog.Logger) (*Core, error) {
	db, err := database.NewSQLiteDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	migrator, err := migration.NewManager(db.SqlDB, logger)
	if err != nil {
		return nil, fmt.Errorf("init migration manager: %w", err)
	}
	if err := migrator.Up(); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	repos := &Repositories{
		Spans:       apmRepo.NewSpanRepository(db.DB),
		ErrorGroups: apmRepo.NewErrorGroupRepository(db.DB),
		Deploys:     apmRepo.NewDeployRepository(db.DB),
		Projects:    apmRepo.NewProjectRepository(db.DB),
		Rollups:     apmRepo.NewRollupRepository(db.DB),
	}

	if err := ensureDefaultProject(repos.Projects); err != nil {
		return nil, fmt.Errorf("ensure default project: %w", err)
	}

	transactor := database.NewTransactor(db.DB)
	service := apmService.New(repos.Spans, repos.ErrorGroups, repos.Deploys, transactor, logger)

	return &Core{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Migration: migrator,
		Repos:     repos,
		Service:   service,
		StartedAt: time.Now().UTC(),
	}, nil
}

// ensureDefaultProject creates a "default" project when no project exists
// yet (a fresh deployment needs one to exist at all). It does not read
// ENABLE_PROJECTS; with projects disabled, the earliest-created project is
// the one used.
func ensureDefaultProject(projects apmDomain.ProjectRepository) error {
	ctx := context.Background()
	count, err := projects.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	key, err := apmDomain.NewProjectAPIKey()
	if err != nil {
		return err
	}

	project := &apmDomain.Project{
		ID:        ulid.New(),
		Name:      "default",
		Slug:      "default",
		APIKey:    key,
		CreatedAt: time.Now().UTC(),
	}
	return projects.Create(ctx, project)
}

func provideServerComponents(core *Core) (*ServerComponents, error) {
	ingestHandler := handlers.NewIngestHandler(core.Service, core.Logger)
	readHandler := handlers.NewReadHandler(core.Service, core.Logger)
	healthHandler := handlers.NewHealthHandler(core.Config, core.DB, core.StartedAt)

	rpcServer := jsonrpc.NewServer(core.Service, core.Repos.Projects, core.DB, core.Logger)

	httpServer := httpTransport.NewServer(core.Config, core.Logger, &handlers.Handlers{
		Ingest: ingestHandler,
		Read:   readHandler,
		Health: healthHandler,
	}, core.Repos.Projects, rpcServer)

	var grpcServer *grpcTransport.Server
	if core.Config.GRPC.Enabled {
		authInterceptor := grpcTransport.NewAuthInterceptor(core.Repos.Projects, core.Logger, core.Config.Ingest.EnableProjects)
		otlpHandler := grpcTransport.NewOTLPHandler(core.Service, core.Logger)

		var err error
		grpcServer, err = grpcTransport.NewServer(core.Config.GRPC.Port, otlpHandler, authInterceptor, core.Logger)
		if err != nil {
			return nil, fmt.Errorf("init gRPC server: %w", err)
		}
	}

	return &ServerComponents{HTTP: httpServer, GRPC: grpcServer, RPC: rpcServer}, nil
}

func provideWorkerComponents(core *Core) *WorkerComponents {
	scheduler := workerApm.NewScheduler(
		core.Logger,
		core.Config,
		core.Repos.Spans,
		core.Repos.ErrorGroups,
		core.Repos.Rollups,
		core.Repos.Deploys,
		core.DB,
	)
	return &WorkerComponents{Scheduler: scheduler}
}
