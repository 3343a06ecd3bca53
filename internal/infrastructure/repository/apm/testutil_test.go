package apm

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"brokle/internal/migration"
)

// setupTestDB opens an in-memory SQLite database and applies every
// migration, mirroring what NewSQLiteDB does against a real file.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// The in-memory database is dropped once the last connection closes;
	// keep exactly one open so migrations and the repository share it.
	sqlDB.SetMaxOpenConns(1)
	// Closing that connection after the test drops the database, so the next
	// test starts from an empty schema.
	t.Cleanup(func() { _ = sqlDB.Close() })

	runMigrations(t, sqlDB)

	return db
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := migration.NewManager(sqlDB, logger)
	require.NoError(t, err)
	require.NoError(t, mgr.Up())
}
