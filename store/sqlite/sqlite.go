// Package sqlite persists settings in a single SQLite table through the pure-Go
// modernc.org/sqlite driver (no CGO). Commits are SQL transactions. Change events
// cover writes made through this Store only; other processes writing the same
// file are not observed.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/unkn0wn-root/prefs/store"
)

const schema = `CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

type Store struct {
	db     *sql.DB
	closed atomic.Bool

	watchers store.Watchers
}

var _ store.Store = (*Store)(nil)

type Config struct {
	// Path of the database file; ":memory:" keeps it in process.
	Path string
}

// Open creates the database directory and table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite store: create directory: %w", err)
			}
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// single connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.ErrClosed
	}
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Commit(ctx context.Context, muts []store.Mutation) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range muts {
		if m.Delete {
			_, err = tx.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, m.Key)
		} else {
			v := m.Value
			if v == nil {
				v = []byte{}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO prefs (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, m.Key, v)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite store: %s: %w", m.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.watchers.Notify(store.ChangedKeys(muts)...)
	return nil
}

func (s *Store) Subscribe(fn func(key string)) func() { return s.watchers.Add(fn) }

func (s *Store) Close(_ context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
