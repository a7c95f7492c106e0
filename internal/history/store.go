// Package history keeps a record of finished sessions in a small sqlite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sideassist/sideassist/internal/engine/types"
)

const createTableSessions = `CREATE TABLE IF NOT EXISTS "sessions" (
	"id"          TEXT PRIMARY KEY,
	"flow"        TEXT NOT NULL,
	"status"      TEXT NOT NULL,
	"files"       INTEGER DEFAULT 0,
	"bytes"       INTEGER DEFAULT 0,
	"message"     TEXT DEFAULT '',
	"started_at"  DATETIME NOT NULL,
	"finished_at" DATETIME NOT NULL
);`

// Entry is one finished session
type Entry struct {
	ID         string
	Flow       string
	Status     types.Status
	Files      int
	Bytes      int64
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the session's wall time
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Recorder stores finished sessions
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is the sqlite-backed Recorder
type Store struct {
	db *sql.DB
	sync.Mutex
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	if _, err := db.Exec(createTableSessions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces e
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.Lock()
	defer s.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions(id, flow, status, files, bytes, message, started_at, finished_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Flow, string(e.Status), e.Files, e.Bytes, e.Message, stamp(e.StartedAt), stamp(e.FinishedAt))
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

// stamp keeps stored times sortable as text
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.Lock()
	defer s.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flow, status, files, bytes, message, started_at, finished_at FROM sessions ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err := rows.Scan(&e.ID, &e.Flow, &status, &e.Files, &e.Bytes, &e.Message, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Status = types.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes every entry
func (s *Store) Clear(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}
