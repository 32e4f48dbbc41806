package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"docflow/internal/logging"
	"docflow/internal/pipeline"
	"docflow/internal/services"
)

// Builder constructs one frozen pipeline per DocType and reuses it for the
// lifetime of the process.
type Builder struct {
	collab Collaborators
	logger *slog.Logger

	mu        sync.Mutex
	pipelines map[DocType]*pipeline.Pipeline
}

// NewBuilder returns a builder backed by collab.
func NewBuilder(collab Collaborators, logger *slog.Logger) (*Builder, error) {
	if collab.Documents == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "new builder", "document store is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{
		collab:    collab,
		logger:    logger.With(logging.String(logging.FieldComponent, "ingest")),
		pipelines: make(map[DocType]*pipeline.Pipeline),
	}, nil
}

// Pipeline returns the frozen pipeline for docType, building it on first use.
func (b *Builder) Pipeline(docType DocType) (*pipeline.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pipelines[docType]; ok {
		return p, nil
	}
	p, err := b.build(docType)
	if err != nil {
		return nil, err
	}
	b.pipelines[docType] = p
	return p, nil
}

func (b *Builder) build(docType DocType) (*pipeline.Pipeline, error) {
	steps := []pipeline.Step{b.loadContentStep(), b.registerDocumentStep()}
	switch docType {
	case DocTypeText:
		steps = append(steps, normalizeTextStep(), textMetadataStep())
	case DocTypeImage:
		steps = append(steps, imageMetadataStep())
	case DocTypeAudio, DocTypeVideo:
		steps = append(steps, mediaMetadataStep())
	default:
		return nil, &UnsupportedDocTypeError{MIMEType: string(docType)}
	}
	steps = append(steps,
		b.enrichStep(docType),
		b.storeMetadataStep(),
		b.indexContentStep(),
		b.storeEmbeddingStep(),
		b.resolveLinksStep(),
		b.markFinishedStep(),
	)

	p := pipeline.New(string(docType) + "_ingest")
	p.SetLogger(b.logger)
	for _, step := range steps {
		if err := p.RegisterStep(step); err != nil {
			return nil, fmt.Errorf("build %s pipeline: %w", docType, err)
		}
	}
	p.Freeze()
	if err := p.Validate(InitialKeys...); err != nil {
		return nil, fmt.Errorf("build %s pipeline: %w", docType, err)
	}
	return p, nil
}

// Request describes one source file to ingest.
type Request struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
	Filename  string `json:"filename,omitempty"`
	MIMEType  string `json:"mime_type"`
}

// Validate checks the request before any pipeline work.
func (r Request) Validate() error {
	switch {
	case r.ProjectID <= 0:
		return errors.New("project_id must be positive")
	case strings.TrimSpace(r.Path) == "":
		return errors.New("path is required")
	case strings.TrimSpace(r.MIMEType) == "":
		return errors.New("mime_type is required")
	}
	if _, err := DocTypeForMIME(r.MIMEType); err != nil {
		return err
	}
	return nil
}

// EntityID identifies the document across re-runs.
func (r Request) EntityID() string {
	return strconv.FormatInt(r.ProjectID, 10) + "/" + r.filename()
}

func (r Request) filename() string {
	if name := strings.TrimSpace(r.Filename); name != "" {
		return name
	}
	return filepath.Base(r.Path)
}

// Result summarises a completed ingest run.
type Result struct {
	SdocID   int64    `json:"sdoc_id"`
	DocType  DocType  `json:"doc_type"`
	Steps    []string `json:"steps"`
	Indexed  bool     `json:"indexed"`
	Embedded bool     `json:"embedded"`
	Links    []int64  `json:"links,omitempty"`
}

// Process runs the pipeline matching req's MIME type.
func (b *Builder) Process(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		if services.IsPermanent(err) {
			return Result{}, err
		}
		return Result{}, services.Wrap(services.ErrValidation, "ingest", "process", err.Error(), nil)
	}
	docType, _ := DocTypeForMIME(req.MIMEType)
	p, err := b.Pipeline(docType)
	if err != nil {
		return Result{}, err
	}

	cargo := pipeline.NewCargo(req.EntityID(), map[string]any{
		KeyPath:      req.Path,
		KeyProjectID: req.ProjectID,
		KeyFilename:  req.filename(),
		KeyMIMEType:  req.MIMEType,
		KeyDocType:   docType,
	})
	cargo, err = p.Run(ctx, cargo)
	if err != nil {
		return Result{}, err
	}

	sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
	if err != nil {
		return Result{}, err
	}
	result := Result{SdocID: sdocID, DocType: docType, Steps: cargo.FinishedSteps}
	result.Indexed, _ = pipeline.Value[bool](cargo, KeyIndexed)
	result.Embedded, _ = pipeline.Value[bool](cargo, KeyEmbedded)
	result.Links, _ = pipeline.Value[[]int64](cargo, KeyLinks)
	return result, nil
}
