package ingest

// Cargo keys shared by the ingest steps.
const (
	KeyPath       = "path"
	KeyProjectID  = "project_id"
	KeyFilename   = "filename"
	KeyMIMEType   = "mime_type"
	KeyDocType    = "doc_type"
	KeyContent    = "content"
	KeyText       = "text"
	KeySdocID     = "sdoc_id"
	KeyMetadata   = "metadata"
	KeyEnrichment = "enrichment"
	KeyIndexed    = "indexed"
	KeyEmbedded   = "embedded"
	KeyLinks      = "links"
)

// InitialKeys are the keys a request seeds into a fresh cargo.
var InitialKeys = []string{KeyPath, KeyProjectID, KeyFilename, KeyMIMEType, KeyDocType}

// Phase orderings. Steps within a phase are spaced by ten.
const (
	phaseInit     = 100
	phaseProcess  = 200
	phaseStorage  = 300
	phaseFinalize = 400
)
