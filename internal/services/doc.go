// Package services defines shared utilities consumed by job handlers, pipeline
// steps, and the worker wrapper.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, job types, step names, worker
//     devices, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so the worker can tell
//     permanent failures (validation, configuration, not found) from ones
//     worth retrying.
//
// Use these helpers when wiring new job types so operational behaviour (error
// handling, observability, retries) stays uniform across the system.
package services
