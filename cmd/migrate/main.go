// Command migrate applies or reports on the embedded SQLite schema.
//
// Usage:
//
//	migrate up       # apply all pending migrations
//	migrate status   # print the current schema version and dirty state
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"brokle/internal/config"
	"brokle/internal/infrastructure/database"
	"brokle/internal/migration"
	"brokle/pkg/logging"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	db, err := database.NewSQLiteDB(cfg, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	manager, err := migration.NewManager(db.SqlDB, logger)
	if err != nil {
		log.Fatalf("failed to initialize migration manager: %v", err)
	}
	defer manager.Close()

	switch command {
	case "up":
		if err := manager.Up(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		fmt.Println("migrations applied")

	case "status":
		if err := showStatus(manager); err != nil {
			log.Fatalf("failed to get migration status: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func showStatus(manager *migration.Manager) error {
	status, err := manager.Status()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <up|status>")
}
