// Command seed creates a project and prints its API key. A fresh
// single-project deployment already gets a "default" project on first
// boot (see internal/app.ensureDefaultProject); this command is for
// provisioning additional named projects once ENABLE_PROJECTS is on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/config"
	"brokle/internal/infrastructure/database"
	apmRepo "brokle/internal/infrastructure/repository/apm"
	"brokle/pkg/logging"
	"brokle/pkg/ulid"
	"brokle/pkg/utils"
)

func main() {
	name := flag.String("name", "", "project name (required)")
	flag.Parse()

	if *name == "" {
		log.Fatal("-name is required")
	}

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

	projects := apmRepo.NewProjectRepository(db.DB)

	apiKey, err := apmDomain.NewProjectAPIKey()
	if err != nil {
		log.Fatalf("failed to generate API key: %v", err)
	}

	id := ulid.New()
	project := &apmDomain.Project{
		ID:        id,
		Name:      *name,
		Slug:      utils.GenerateCompositeSlug(*name, id),
		APIKey:    apiKey,
		CreatedAt: time.Now().UTC(),
	}

	if err := projects.Create(context.Background(), project); err != nil {
		log.Fatalf("failed to create project: %v", err)
	}

	fmt.Printf("project %q created\n", *name)
	fmt.Printf("  id:      %s\n", project.ID)
	fmt.Printf("  slug:    %s\n", project.Slug)
	fmt.Printf("  api_key: %s\n", project.APIKey)
}
