package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"raster-combine/internal/api"
	"raster-combine/internal/store"
)

func main() {
	noStore := flag.Bool("no-store", false, "Run without a snapshot database")
	flag.Parse()

	maxTables, err := getMaxTables()
	if err != nil {
		log.Fatalf("Invalid MAX_TABLES: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	server, err := newServer(*noStore, maxTables, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	addr := getListenAddr()
	s := &http.Server{
		Addr:    addr,
		Handler: server.Routes(),
	}

	fmt.Printf("Starting server on %s\n", addr)
	if err := s.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newServer(noStore bool, maxTables int, logger *zap.Logger) (*api.Server, error) {
	if noStore {
		log.Printf("Snapshot store disabled")
		return api.NewServer(nil, maxTables, logger)
	}

	// Initialize database
	dbPath := getDBPath()
	log.Printf("Connecting to database: %s", dbPath)
	db, err := store.InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return api.NewServer(db, maxTables, logger)
}

func getDBPath() string {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./combine.db"
	}
	return dbPath
}

func getListenAddr() string {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return addr
}

func getMaxTables() (int, error) {
	v := os.Getenv("MAX_TABLES")
	if v == "" {
		return api.DefaultMaxTables, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q: %w", v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
