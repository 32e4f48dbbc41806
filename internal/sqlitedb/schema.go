package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const schemaVersionDDL = `CREATE TABLE IF NOT EXISTS schema_version (
    component TEXT PRIMARY KEY,
    version INTEGER NOT NULL
)`

// EnsureSchema creates the tables owned by component on first use and verifies
// the recorded version on every later open. Components share one database file
// and each tracks its own version row.
func EnsureSchema(ctx context.Context, db *sql.DB, component string, version int, ddl string) error {
	ctx = ensureContext(ctx)
	return InTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaVersionDDL); err != nil {
			return fmt.Errorf("create schema_version table: %w", err)
		}

		var current int
		err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE component = ?", component).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("create %s schema: %w", component, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (component, version) VALUES (?, ?)", component, version); err != nil {
				return fmt.Errorf("record %s schema version: %w", component, err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("read %s schema version: %w", component, err)
		}

		if current != version {
			return fmt.Errorf("%w: %s tables have version %d, expected %d (delete the database to recreate it)",
				ErrSchemaMismatch, component, current, version)
		}
		return nil
	})
}
