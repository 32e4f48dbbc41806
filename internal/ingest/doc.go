// Package ingest builds the per-media preprocessing pipelines.
//
// Every pipeline shares the same four phases: init (load the source file and
// register the document), process (media-specific metadata plus configured
// enrichers), storage (metadata, search index, embedding) and finalize
// (cross-document links, mark finished). A Builder constructs each media
// type's pipeline once, validates its data flow, freezes it and hands the same
// instance to every caller. External services are reached only through the
// interfaces in Collaborators.
package ingest
