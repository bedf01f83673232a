package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// setupLiteMode opens an embedded sqlite database for single-operator
// runs where no Postgres is available. Entity resolution is disabled
// in this mode (pg_trgm has no sqlite equivalent); sheets that
// reference entities by search token rather than @binding will fail
// validation until a real Postgres is configured.
func setupLiteMode(ctx context.Context) (*sql.DB, error) {
	dataDir := "data"
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "semos.db")
	log.Printf("[semosd] lite mode: using sqlite at %s", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return db, nil
}
