package queue

import (
	"context"
	_ "embed"

	"docflow/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// queueSchemaVersion covers the jobs table and its indexes. A mismatch makes
// Open fail until the database file is removed.
const queueSchemaVersion = 1

func (s *Store) initSchema(ctx context.Context) error {
	return sqlitedb.EnsureSchema(ctx, s.db, "queue", queueSchemaVersion, schemaSQL)
}
