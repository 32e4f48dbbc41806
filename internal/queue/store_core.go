package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docflow/internal/config"
	"docflow/internal/sqlitedb"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db    *sql.DB
	path  string
	owned bool
}

// Open initializes or connects to the database at cfg.DatabasePath(). The
// returned store owns the connection pool; other stores share it through DB().
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("queue: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, path: dbPath, owned: true}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore attaches to an already open database. Close is a no-op for the
// returned store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("queue: database handle is required")
	}
	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// DB exposes the shared connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file location when the store opened it.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sqlitedb.Exec(ctx, s.db, query, args...)
}
