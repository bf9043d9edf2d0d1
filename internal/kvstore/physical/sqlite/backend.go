// Package sqlite provides a SQLite-backed kvstore backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
)

func init() {
	physical.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() storage.Options {
	return storage.Options{
		KeyPath:        "~/.arc/ledger/records.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key    TEXT PRIMARY KEY,
    value  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS queue (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    name   TEXT NOT NULL,
    value  BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_name ON queue(name, id);
`

// NewFactory creates a new SQLite backend from its options.
func NewFactory(_ context.Context, opts storage.Options) (physical.Backend, error) {
	path := opts.GetString(KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("sqlite", KeyPath, "cannot be empty")
	}
	if path != ":memory:" {
		path = storage.ExpandPath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to create directory", err)
		}
	}

	journalMode := opts.GetString(KeyJournalMode, "wal")
	busyTimeout, err := opts.GetInt("sqlite", KeyBusyTimeout, 5000)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)",
		path, journalMode, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to open database", err)
	}

	b, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to initialize schema", err)
	}

	slog.Info("sqlite kvstore initialized", "path", path, "journal_mode", journalMode)
	return b, nil
}

// NewWithDB wraps an open database and creates the schema if needed.
func NewWithDB(db *sql.DB) (*Backend, error) {
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO records (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite put if absent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite put if absent: rows affected: %w", err)
	}
	if n == 0 {
		return physical.ErrExists
	}
	return nil
}

func (b *Backend) Append(ctx context.Context, queue string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := b.db.ExecContext(ctx, `INSERT INTO queue (name, value) VALUES (?, ?)`, queue, value); err != nil {
		return fmt.Errorf("sqlite append: %w", err)
	}
	return nil
}

func (b *Backend) Drain(ctx context.Context, queue string) ([][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite drain: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT value FROM queue WHERE name = ? ORDER BY id`, queue)
	if err != nil {
		return nil, fmt.Errorf("sqlite drain: query: %w", err)
	}
	out := [][]byte{}
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite drain: scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite drain: rows: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE name = ?`, queue); err != nil {
		return nil, fmt.Errorf("sqlite drain: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite drain: commit: %w", err)
	}
	return out, nil
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
