// Package queue persists jobs in SQLite and exposes helpers for driving their
// lifecycle.
//
// The Store manages the jobs table, atomic per-device claims, heartbeat
// tracking, stale-job recovery, abort requests, result expiry and the status
// transitions permitted by CanTransition. Queues are not separate tables: the
// device column (cpu, gpu, api) routes each job to a worker lane, and a claim
// picks the highest priority, oldest waiting job for that lane.
//
// Treat this package as the single source of truth for job state; when you add
// columns, update schema.sql and bump queueSchemaVersion.
package queue
