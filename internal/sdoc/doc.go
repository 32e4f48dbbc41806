// Package sdoc is the local source-document store used by the ingest
// pipelines: document rows keyed by (project_id, filename), cross-document
// links, a plain full-text table searched with LIKE, and float32 embeddings
// with brute-force cosine lookup. It shares the daemon's SQLite database.
package sdoc
