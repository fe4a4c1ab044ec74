// Package main is a diagnostic tool for testing database connectivity and
// inspecting live portal data. It connects to the configured database, counts
// hubs by access method, and summarizes outstanding verification artifacts.
// The binary exits non-zero on any failure so it can gate deployments on a
// reachable, migrated database.
package main

import (
	"database/sql"
	"fmt"
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
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	fmt.Println("=== HUBS ===")
	rows, err := db.Query(`
		SELECT access_method, COUNT(*), COUNT(*) FILTER (WHERE is_published)
		FROM hubs GROUP BY access_method ORDER BY access_method`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var method string
		var count, published int
		if err := rows.Scan(&method, &count, &published); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("  %-10s %d hubs (%d published)\n", method, count, published)
		total += count
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Rows failed: %v", err)
	}
	fmt.Printf("  total: %d\n", total)

	fmt.Println("=== PORTAL ARTIFACTS ===")
	var contacts, codes, liveCodes, devices, liveDevices int
	queries := []struct {
		label string
		query string
		dest  *int
	}{
		{"contacts", `SELECT COUNT(*) FROM portal_contacts`, &contacts},
		{"verification codes", `SELECT COUNT(*) FROM verification_codes`, &codes},
		{"  of which live", `SELECT COUNT(*) FROM verification_codes WHERE NOT used AND expires_at > NOW()`, &liveCodes},
		{"device tokens", `SELECT COUNT(*) FROM device_tokens`, &devices},
		{"  of which live", `SELECT COUNT(*) FROM device_tokens WHERE expires_at > NOW()`, &liveDevices},
	}
	for _, q := range queries {
		if err := db.QueryRow(q.query).Scan(q.dest); err != nil {
			log.Fatalf("Query failed (%s): %v", q.label, err)
		}
		fmt.Printf("  %-20s %d\n", q.label, *q.dest)
	}

	fmt.Println("Database OK")
}
