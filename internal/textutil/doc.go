// Package textutil holds the small text helpers shared by ingest and the
// archive job type: word tokenization and filename sanitization.
package textutil
