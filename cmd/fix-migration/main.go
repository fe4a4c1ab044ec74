// Package main is a repair tool for dirty migration state. Dirty state occurs
// when golang-migrate marks a version as in-progress but the process was
// interrupted before finishing; the flag then blocks every subsequent server
// start with a "Dirty database version" error. This tool clears the flag so
// the runner can retry cleanly.
package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/clienthub/clienthub/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var version int
	var dirty bool
	err = db.QueryRow(`SELECT version, dirty FROM schema_migrations`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		log.Println("No migration state recorded; nothing to fix")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}

	log.Printf("Current state: version=%d dirty=%v", version, dirty)
	if !dirty {
		log.Println("Migration state is clean; nothing to fix")
		return
	}

	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = FALSE`); err != nil {
		log.Fatalf("Failed to clear dirty flag: %v", err)
	}
	log.Printf("Cleared dirty flag at version %d; the next 'clienthub migrate' will retry", version)
}
