package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO
)

// SQLiteStore is the durable cache layer. Entries never expire; stale
// results are discarded upstream via the force-reprocess flag.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the cache database at
// path. WAL mode allows concurrent readers while a writer is active.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	// The pragmas must be part of the DSN so they apply to every
	// connection in the database/sql pool, not just the one that
	// happens to run the Exec below.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	// Serialize writes from concurrent workers instead of failing with
	// SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS unit_cache (
		doc_id        TEXT NOT NULL,
		unit_hash     TEXT NOT NULL,
		model         TEXT NOT NULL,
		response_json BLOB NOT NULL,
		created_at    INTEGER NOT NULL,
		PRIMARY KEY (doc_id, unit_hash, model)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(docID, unitText, model string) ([]byte, bool) {
	var response []byte
	err := s.db.QueryRow(
		`SELECT response_json FROM unit_cache WHERE doc_id = ? AND unit_hash = ? AND model = ?`,
		docID, Fingerprint(unitText), model,
	).Scan(&response)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "Warning: cache read failed: %v\n", err)
		}
		return nil, false
	}
	return response, true
}

// Put implements Store with upsert semantics.
func (s *SQLiteStore) Put(docID, unitText, model string, response []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO unit_cache (doc_id, unit_hash, model, response_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		docID, Fingerprint(unitText), model, response, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
