package ingest

import (
	"context"

	"docflow/internal/sdoc"
)

// DocumentStore persists source documents.
type DocumentStore interface {
	Upsert(ctx context.Context, doc sdoc.Document) (sdoc.Document, error)
	MergeMetadata(ctx context.Context, id int64, values map[string]any) error
	SetStatus(ctx context.Context, id int64, status string) error
	ListProject(ctx context.Context, projectID int64) ([]sdoc.Document, error)
	ReplaceLinks(ctx context.Context, sourceID int64, targetIDs []int64) error
}

// SearchIndex receives the searchable text of a document.
type SearchIndex interface {
	IndexContent(ctx context.Context, sdocID, projectID int64, body string) error
}

// VectorStore receives document embeddings.
type VectorStore interface {
	StoreEmbedding(ctx context.Context, sdocID int64, vector []float32) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EnrichInput is what an enricher sees of the document being processed.
type EnrichInput struct {
	SdocID   int64
	DocType  DocType
	Filename string
	MIMEType string
	Content  []byte
	Text     string
}

// Enricher wraps a model service (NLP, captioning, transcription). Returned
// values are merged into the document metadata under the enricher name; a
// "transcript" string becomes the document text for indexing.
type Enricher interface {
	Name() string
	Supports(DocType) bool
	Enrich(ctx context.Context, in EnrichInput) (map[string]any, error)
}

// Collaborators are the external services the steps call.
type Collaborators struct {
	Documents DocumentStore
	Search    SearchIndex
	Vectors   VectorStore
	Embedder  Embedder
	Enrichers []Enricher
	// MaxFileBytes caps load_content; zero disables the check.
	MaxFileBytes int64
}
