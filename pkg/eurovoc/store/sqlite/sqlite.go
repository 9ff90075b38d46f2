package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/eurovoc/pkg/eurovoc/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection so the pragmas below hold for every statement and
	// concurrent workers queue instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS bodies (
	key TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS taxonomy_terms (
	term TEXT PRIMARY KEY,
	concept_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS taxonomy_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	fetched_at TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// GetBody looks up cached text by key
func (s *sqliteStore) GetBody(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM bodies WHERE key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// PutBody stores text under key, replacing any previous value
func (s *sqliteStore) PutBody(ctx context.Context, key string, text string) error {
	const stmt = `
INSERT INTO bodies (key, text, created_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	text=excluded.text,
	created_at=excluded.created_at;
`
	_, err := s.db.ExecContext(ctx, stmt, key, text, time.Now().UTC().Format(time.RFC3339))
	return err
}

// LoadTaxonomy returns the stored snapshot, if any
func (s *sqliteStore) LoadTaxonomy(ctx context.Context) (store.TaxonomySnapshot, bool, error) {
	var fetched string
	err := s.db.QueryRowContext(ctx, `SELECT fetched_at FROM taxonomy_meta WHERE id = 1`).Scan(&fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TaxonomySnapshot{}, false, nil
	}
	if err != nil {
		return store.TaxonomySnapshot{}, false, err
	}

	fetchedAt, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return store.TaxonomySnapshot{}, false, fmt.Errorf("parse fetched_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT term, concept_id FROM taxonomy_terms`)
	if err != nil {
		return store.TaxonomySnapshot{}, false, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var term, id string
		if err := rows.Scan(&term, &id); err != nil {
			return store.TaxonomySnapshot{}, false, err
		}
		terms[term] = id
	}
	if err := rows.Err(); err != nil {
		return store.TaxonomySnapshot{}, false, err
	}

	return store.TaxonomySnapshot{FetchedAt: fetchedAt, Terms: terms}, true, nil
}

// SaveTaxonomy replaces the stored snapshot atomically
func (s *sqliteStore) SaveTaxonomy(ctx context.Context, snap store.TaxonomySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM taxonomy_terms`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO taxonomy_terms (term, concept_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for term, id := range snap.Terms {
		if _, err := stmt.ExecContext(ctx, term, id); err != nil {
			return err
		}
	}

	const meta = `
INSERT INTO taxonomy_meta (id, fetched_at) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET fetched_at=excluded.fetched_at;
`
	if _, err := tx.ExecContext(ctx, meta, snap.FetchedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}
