package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"raster-combine/internal/cmbtable"
)

// Schema creates the snapshot tables
const Schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		label TEXT,
		key_len INTEGER NOT NULL,
		var_names TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_entries (
		snapshot_id TEXT NOT NULL,
		cmb_id INTEGER NOT NULL,
		count REAL NOT NULL,
		key_values TEXT NOT NULL,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id),
		PRIMARY KEY (snapshot_id, cmb_id)
	);
`

// SnapshotInfo describes a stored snapshot
type SnapshotInfo struct {
	ID        string
	Label     string
	CreatedAt time.Time
	KeyLen    int
	Len       int
}

// InitDB initializes and returns a SQLite database connection
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// CreateSchema creates the snapshot tables if they do not exist
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSnapshot stores frame under a new snapshot ID and returns the ID
func SaveSnapshot(db *sql.DB, label string, frame *cmbtable.Frame) (string, error) {
	snapshotID := uuid.New().String()

	varNames, err := json.Marshal(frame.VarNames())
	if err != nil {
		return "", fmt.Errorf("failed to encode variable names: %w", err)
	}

	// Start a transaction
	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertSnapshotQuery := `INSERT INTO snapshots (id, label, key_len, var_names) VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(insertSnapshotQuery, snapshotID, label, len(frame.VarNames()), string(varNames)); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO snapshot_entries (snapshot_id, cmb_id, count, key_values) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range frame.Records {
		key, err := json.Marshal(rec.Key)
		if err != nil {
			return "", fmt.Errorf("failed to encode key of combination %d: %w", rec.ID, err)
		}
		if _, err := stmt.Exec(snapshotID, rec.ID, rec.Count, string(key)); err != nil {
			return "", fmt.Errorf("failed to insert combination %d: %w", rec.ID, err)
		}
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snapshotID, nil
}

// GetSnapshot loads a stored snapshot as a frame ordered by combination ID.
// It returns nil, nil if the snapshot does not exist.
func GetSnapshot(db *sql.DB, snapshotID string) (*cmbtable.Frame, error) {
	var varNamesJSON string
	err := db.QueryRow(`SELECT var_names FROM snapshots WHERE id = ?`, snapshotID).Scan(&varNamesJSON)
	if err == sql.ErrNoRows {
		return nil, nil // Snapshot not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var varNames []string
	if err := json.Unmarshal([]byte(varNamesJSON), &varNames); err != nil {
		return nil, fmt.Errorf("failed to decode variable names: %w", err)
	}

	rows, err := db.Query(`SELECT cmb_id, count, key_values FROM snapshot_entries WHERE snapshot_id = ? ORDER BY cmb_id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot entries: %w", err)
	}
	defer rows.Close()

	frame := &cmbtable.Frame{
		Columns: append([]string{cmbtable.ColumnID, cmbtable.ColumnCount}, varNames...),
		Records: []cmbtable.Entry{},
	}
	for rows.Next() {
		var rec cmbtable.Entry
		var keyJSON string
		if err := rows.Scan(&rec.ID, &rec.Count, &keyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot entry: %w", err)
		}
		if err := json.Unmarshal([]byte(keyJSON), &rec.Key); err != nil {
			return nil, fmt.Errorf("failed to decode key of combination %d: %w", rec.ID, err)
		}
		frame.Records = append(frame.Records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot entries: %w", err)
	}

	return frame, nil
}

// ListSnapshots returns all stored snapshots, newest first
func ListSnapshots(db *sql.DB) ([]SnapshotInfo, error) {
	query := `
		SELECT s.id, COALESCE(s.label, ''), s.created_at, s.key_len, COUNT(e.cmb_id)
		FROM snapshots s
		LEFT JOIN snapshot_entries e ON e.snapshot_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotInfo{}
	for rows.Next() {
		var s SnapshotInfo
		if err := rows.Scan(&s.ID, &s.Label, &s.CreatedAt, &s.KeyLen, &s.Len); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}
