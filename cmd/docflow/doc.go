// Package main hosts the docflow CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, submits and inspects jobs,
// reads tracker rows and scaffolds configuration. Job commands open the
// SQLite database directly, so they work whether or not the daemon is
// running; daemon status and event history go through the HTTP API.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
