package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/airinterface/contract-safe/pkg/escrow"
	"github.com/airinterface/contract-safe/pkg/ingest"
)

// bootstrap initializes the database schemas for a fresh deployment.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: bootstrap <db_url>")
	}
	dbURL := os.Args[1]

	driver := "sqlite"
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dbURL)
	if err != nil {
		log.Fatalf("Failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	log.Println("[bootstrap] Initializing schemas...")

	if err := escrow.NewSQLStore(db).Init(ctx); err != nil {
		log.Fatalf("Failed to init escrow schema: %v", err)
	}
	if err := ingest.NewSQLDedupStore(db).Init(ctx); err != nil {
		log.Fatalf("Failed to init notification schema: %v", err)
	}

	log.Println("[bootstrap] Schemas initialized.")
}
