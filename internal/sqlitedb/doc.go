// Package sqlitedb holds the SQLite plumbing shared by every store in the
// repository: opening the database with WAL and busy-timeout pragmas,
// retrying statements that lose the write lock, per-component schema
// versioning, and the column encoding helpers (fixed-width UTC timestamps,
// NULL mapping, placeholder lists) the queue, tracker and document stores use.
package sqlitedb
