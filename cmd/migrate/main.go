package main

import (
	"log"

	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/model"
	"tabkeeper-be/pkg/database"

	"github.com/fatih/color"
)

const pendingDedupIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_suggestions_pending_dedup_key ON suggestions (dedup_key) WHERE status = 'pending';`

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.LogLevel)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	color.Cyan("Starting GORM migration...")

	// 3. Pre-Migration: Extensions
	color.Yellow("Step 1: Setting up extensions...")

	setupSQL := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		// dedup_key used to be unique across every status.
		`DROP INDEX IF EXISTS idx_suggestions_dedup_key;`,
	}

	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			color.Red("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}

	// 4. AutoMigrate All Models
	models := []interface{}{
		&model.Tab{},
		&model.Bookmark{},
		&model.Suggestion{},
		&model.RevokedToken{},
		&model.ArchivedPage{},
		&model.DeadLetterJob{},
	}
	color.Yellow("Step 2: Running AutoMigrate for %d tables...", len(models))

	if err := db.AutoMigrate(models...); err != nil {
		color.Red("Error: AutoMigrate failed: %v", err)
		log.Fatal(err)
	}

	// 5. Pending-only dedup key; CreateIfAbsent's ON CONFLICT targets it.
	color.Yellow("Step 3: Creating pending suggestion dedup index...")

	if err := db.Exec(pendingDedupIndexSQL).Error; err != nil {
		color.Red("Error: Failed to create pending dedup index: %v", err)
		log.Fatal(err)
	}

	// 6. Post-Migration: Indexes AutoMigrate cannot express
	color.Yellow("Step 4: Creating vector and lookup indexes...")

	postMigrationSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_tabs_embedding_hnsw ON tabs USING hnsw (embedding vector_l2_ops);`,
		`CREATE INDEX IF NOT EXISTS idx_bookmarks_embedding_hnsw ON bookmarks USING hnsw (embedding vector_l2_ops);`,
		`CREATE INDEX IF NOT EXISTS idx_tabs_owner_url ON tabs (owner_id, url) WHERE NOT is_archived;`,
		`CREATE INDEX IF NOT EXISTS idx_bookmarks_owner_url ON bookmarks (owner_id, url) WHERE NOT is_archived;`,
		`CREATE INDEX IF NOT EXISTS idx_tabs_reference_time ON tabs (owner_id, COALESCE(last_accessed, created_at));`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_rejected ON suggestions (created_at) WHERE status = 'rejected';`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			color.Red("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	color.Green("✅ Success: Database migration completed.")
}
