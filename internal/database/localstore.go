package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// LocalStore is the development-only SQLite fallback store. Records are kept
// as JSON documents so the two backends stay behaviorally equivalent.
type LocalStore struct {
	db   *sql.DB
	path string
}

// NewLocalStore opens (or creates) the SQLite store at the given path
func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// SQLite is single-writer; more connections just contend
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	store := &LocalStore{db: db, path: path}
	if err := store.initialize(); err != nil {
		return nil, err
	}

	log.Printf("✅ Local store opened: %s", path)
	return store, nil
}

// initialize creates the document tables
func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS harvest_buckets (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			status TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_buckets_book ON harvest_buckets(book_id)`,
		`CREATE INDEX IF NOT EXISTS idx_buckets_status ON harvest_buckets(status)`,
		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			uri TEXT,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_uri ON books(uri) WHERE uri IS NOT NULL AND uri != ''`,
		`CREATE TABLE IF NOT EXISTS narrative_arcs (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			status TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_arcs_book ON narrative_arcs(book_id)`,
		`CREATE TABLE IF NOT EXISTS passage_links (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			passage_id TEXT NOT NULL,
			chapter_id TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_book ON passage_links(book_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize local store schema: %w", err)
		}
	}
	return nil
}

// PutDocument upserts a JSON document into one of the bucket/book tables
func (s *LocalStore) PutDocument(ctx context.Context, table, id, bookID, status string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", table, err)
	}

	var query string
	args := []interface{}{}
	switch table {
	case CollectionBuckets:
		query = `INSERT INTO harvest_buckets (id, book_id, status, data, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET book_id=excluded.book_id, status=excluded.status, data=excluded.data, updated_at=excluded.updated_at`
		args = append(args, id, bookID, status, string(data), time.Now().UTC().Format(time.RFC3339))
	case CollectionBooks:
		query = `INSERT INTO books (id, uri, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET uri=excluded.uri, data=excluded.data, updated_at=excluded.updated_at`
		args = append(args, id, bookID, string(data), time.Now().UTC().Format(time.RFC3339))
	case CollectionArcs:
		query = `INSERT INTO narrative_arcs (id, book_id, status, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status=excluded.status, data=excluded.data`
		args = append(args, id, bookID, status, string(data))
	default:
		return fmt.Errorf("unknown local store table: %s", table)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s document: %w", table, err)
	}
	return nil
}

// PutLink appends a passage link row
func (s *LocalStore) PutLink(ctx context.Context, id, bookID, passageID, chapterID string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode link document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO passage_links (id, book_id, passage_id, chapter_id, data) VALUES (?, ?, ?, ?, ?)`,
		id, bookID, passageID, chapterID, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert passage link: %w", err)
	}
	return nil
}

// ListDocuments scans a table and decodes each JSON document into out via fn
func (s *LocalStore) ListDocuments(ctx context.Context, table, bookID string, fn func(data []byte) error) error {
	query := fmt.Sprintf("SELECT data FROM %s", table) //nolint:gosec // table names come from collection constants
	args := []interface{}{}
	if bookID != "" {
		query += " WHERE book_id = ?"
		args = append(args, bookID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetDocument fetches one JSON document by id (or books by URI when byURI)
func (s *LocalStore) GetDocument(ctx context.Context, table, id string, byURI bool) ([]byte, error) {
	column := "id"
	if byURI {
		column = "uri"
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?", table, column) //nolint:gosec // constants only

	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s document: %w", table, err)
	}
	return []byte(data), nil
}

// DeleteDocument removes one document by id
func (s *LocalStore) DeleteDocument(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table) //nolint:gosec // constants only
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s document: %w", table, err)
	}
	return nil
}

// Ping checks if the store is reachable
func (s *LocalStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database
func (s *LocalStore) Close() error {
	log.Printf("🔌 Closing local store: %s", s.path)
	return s.db.Close()
}
