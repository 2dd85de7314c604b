package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"raster-combine/internal/store"
)

const dropTables = `
	DROP TABLE IF EXISTS snapshot_entries;
	DROP TABLE IF EXISTS snapshots;
`

func main() {
	reset := flag.Bool("reset", false, "Drop existing snapshot tables first")
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./combine.db"
	}

	log.Printf("Setting up database at: %s\n", dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *reset {
		// Drop existing tables
		log.Println("Dropping existing tables...")
		if _, err := db.Exec(dropTables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	// Create tables
	log.Println("Creating tables...")
	if err := store.CreateSchema(db); err != nil {
		log.Fatalf("%v", err)
	}

	log.Println("Database setup completed successfully!")
	fmt.Println("\nTables:")
	fmt.Println("- snapshots (one row per saved combination table)")
	fmt.Println("- snapshot_entries (one row per combination)")
}
