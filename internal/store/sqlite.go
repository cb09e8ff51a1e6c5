package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	chatsCollection     = "chats"
	bookmarksCollection = "bookmarks"
)

// Error describes a failed storage operation on one collection.
type Error struct {
	Op         string // init, begin, load, decode, encode, save, commit
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SQLiteStore keeps each collection as one JSON document in SQLite. Every
// operation loads and saves whole collections inside a transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name        TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Init creates the empty chats and bookmarks collections when they do not exist yet.
func (s *SQLiteStore) Init(ctx context.Context) error {
	for name, empty := range map[string]string{chatsCollection: "{}", bookmarksCollection: "[]"} {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO collections (name, value, updated_at) VALUES (?, ?, ?)`,
			name, empty, s.now(),
		)
		if err != nil {
			return &Error{Op: "init", Collection: name, Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Info("storage initialized", "collection", name)
		}
	}
	return nil
}

// read loads one collection outside a transaction.
func (s *SQLiteStore) read(ctx context.Context, name string, dst any) error {
	return load(ctx, s.db, name, dst)
}

// update loads a collection into dst, runs fn and saves dst, all in one transaction.
// fn returning false skips the write.
func (s *SQLiteStore) update(ctx context.Context, name string, dst any, fn func() bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "begin", Collection: name, Err: err}
	}
	defer tx.Rollback()

	if err := load(ctx, tx, name, dst); err != nil {
		return err
	}
	if !fn() {
		return nil
	}

	data, err := json.Marshal(dst)
	if err != nil {
		return &Error{Op: "encode", Collection: name, Err: err}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(data), s.now(),
	)
	if err != nil {
		return &Error{Op: "save", Collection: name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "commit", Collection: name, Err: err}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// load decodes the named collection into dst. A missing collection leaves dst as is.
func load(ctx context.Context, q queryer, name string, dst any) error {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM collections WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return &Error{Op: "load", Collection: name, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &Error{Op: "decode", Collection: name, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
