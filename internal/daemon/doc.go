// Package daemon coordinates the long-running docflow process.
//
// It wires the worker lanes, the HTTP API and the result-expiry maintenance
// loop into a single lifecycle, with flock-based locking so only one daemon
// owns a data directory. Start runs preflight checks and requeues jobs a
// previous process left RUNNING before any lane claims work.
//
// Keep orchestration logic here: job semantics live in jobs, worker and
// jobtypes while the daemon focuses on startup, shutdown and high level
// coordination.
package daemon
