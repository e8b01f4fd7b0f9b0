// Command apexmigrate runs the Postgres mirror's schema migrations via
// goose. The mirror is a secondary, non-authoritative copy of the ledger;
// this command never touches ledger.snapshot.json or ledger.wal.
//
// Usage:
//
//	go run ./cmd/apexmigrate up
//	go run ./cmd/apexmigrate down
//	go run ./cmd/apexmigrate status
//	go run ./cmd/apexmigrate version
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: apexmigrate <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	dbURL := os.Getenv("MIRROR_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("MIRROR_DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to open mirror database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to mirror database: %v", err)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if err := goose.RunContext(context.Background(), command, db, migrationsDir, args...); err != nil {
		log.Fatalf("migration %s failed: %v", command, err)
	}
}
