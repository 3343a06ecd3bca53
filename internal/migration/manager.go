package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Manager drives golang-migrate against the single embedded SQLite store.
// There is exactly one runner, not one per backend.
type Manager struct {
	logger *slog.Logger
	runner *migrate.Migrate
}

// NewManager opens a migration runner against sqlDB using the migrations
// embedded at build time.
func NewManager(sqlDB *sql.DB, logger *slog.Logger) (*Manager, error) {
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite3 migration driver: %w", err)
	}

	source, err := iofs.New(embeddedMigrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	runner, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration runner: %w", err)
	}

	return &Manager{logger: logger, runner: runner}, nil
}

// Up applies every pending migration.
func (m *Manager) Up() error {
	if err := m.runner.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}
	m.logger.Info("migrations applied")
	return nil
}

// Status reports the current schema version.
func (m *Manager) Status() (MigrationStatus, error) {
	version, dirty, err := m.runner.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return MigrationStatus{Status: "error", Error: err.Error()}, err
	}
	status := "healthy"
	if dirty {
		status = "dirty"
	}
	return MigrationStatus{CurrentVersion: version, IsDirty: dirty, Status: status}, nil
}

// Close releases the migration runner's resources without closing sqlDB
// (the caller owns that connection).
func (m *Manager) Close() error {
	srcErr, dbErr := m.runner.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
