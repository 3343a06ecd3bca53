package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"brokle/internal/config"
)

// SQLiteDB wraps the single embedded relational store: one connection
// pool against one file.
type SQLiteDB struct {
	DB     *gorm.DB
	SqlDB  *sql.DB
	config *config.Config
	logger *slog.Logger
}

// NewSQLiteDB opens the SQLite database at cfg.Database.Path, creating its
// parent directory if necessary, and configures WAL mode, a busy timeout, and foreign key
// enforcement.
func NewSQLiteDB(cfg *config.Config, logger *slog.Logger) (*SQLiteDB, error) {
	dir := filepath.Dir(cfg.Database.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.Database.Path, cfg.Database.BusyTimeout.Milliseconds())

	glogger := gormLogger.Default.LogMode(gormLogger.Silent)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 glogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB: %w", err)
	}

	// SQLite only tolerates one writer; keep the pool small and let WAL mode let readers proceed alongside it.
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	logger.Info("connected to SQLite database", "path", cfg.Database.Path)

	return &SQLiteDB{DB: db, SqlDB: sqlDB, config: cfg, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *SQLiteDB) Close() error {
	s.logger.Info("closing SQLite connection")
	return s.SqlDB.Close()
}

// Health pings the database.
func (s *SQLiteDB) Health() error {
	return s.SqlDB.Ping()
}

// Stats returns connection pool statistics.
func (s *SQLiteDB) Stats() sql.DBStats {
	return s.SqlDB.Stats()
}

// Vacuum reclaims space freed by retention deletes.
func (s *SQLiteDB) Vacuum() error {
	start := time.Now()
	if _, err := s.SqlDB.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	s.logger.Info("vacuum completed", "duration", time.Since(start))
	return nil
}

// SizeMB returns the on-disk size of the main database file, in megabytes.
// WAL and shm companion files are not included; they're reclaimed on
// checkpoint and aren't part of the durable dataset size.
func (s *SQLiteDB) SizeMB() (float64, error) {
	info, err := os.Stat(s.config.Database.Path)
	if err != nil {
		return 0, fmt.Errorf("stat database file: %w", err)
	}
	return float64(info.Size()) / (1024 * 1024), nil
}
