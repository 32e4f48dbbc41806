// Package api exposes the job system over HTTP and defines the wire-format
// views shared by the daemon and the CLI.
//
// # Routes
//
//	POST /api/jobs/{type}             submit a router-enabled job type
//	GET  /api/jobs/{type}/{id}        job status and result
//	POST /api/jobs/{type}/{id}/abort  abort a waiting or running job
//	GET  /api/jobs                    list jobs (?status=&type=&limit=)
//	GET  /api/types                   registered job types
//	GET  /api/tracker/{type}/{entity} status row for an entity
//	GET  /api/events                  bus history (?since=)
//	GET  /api/status                  daemon status
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Job input and output pass through as json.RawMessage.
//
// Errors map onto status codes by kind: not_found is 404, validation is 400
// and refused transitions are 409. Every error body is {"error": "..."}.
package api
