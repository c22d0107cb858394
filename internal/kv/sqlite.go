package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"cms-go/internal/cms"
	"cms-go/internal/kv/migrations"
)

// SQLiteStore keeps values in a single kv table. Swap is a conditional
// UPDATE (or INSERT OR IGNORE when the key must be absent), so it is atomic
// for every process sharing the database file.
type SQLiteStore struct {
	db    *sql.DB
	clock cms.Clock
}

// NewSQLiteStore opens the database at path, migrates it and verifies the
// schema version. path can be ":memory:" for tests.
func NewSQLiteStore(path string, clock cms.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.CheckStatus(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

// NewSQLiteStoreInDir opens kv.db inside dir, creating dir if needed.
func NewSQLiteStoreInDir(dir string, clock cms.Clock) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sqlite data dir: %w", err)
	}
	return NewSQLiteStore(filepath.Join(dir, "kv.db"), clock)
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cms.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Swap implements cms.Swapper.
func (s *SQLiteStore) Swap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	now := s.clock.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if prev == nil {
		res, err = s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
			key, next, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE kv SET value = ?, updated_at = ? WHERE key = ? AND value = ?",
			next, now, key, prev)
	}
	if err != nil {
		return false, fmt.Errorf("sqlite swap: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite swap: %w", err)
	}
	return n == 1, nil
}

// Shared is true: other processes may open the same database file.
func (s *SQLiteStore) Shared() bool { return true }
func (s *SQLiteStore) Name() string { return "sqlite" }
func (s *SQLiteStore) Close() error { return s.db.Close() }

var (
	_ cms.Store   = (*SQLiteStore)(nil)
	_ cms.Swapper = (*SQLiteStore)(nil)
)
