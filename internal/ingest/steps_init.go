package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"docflow/internal/pipeline"
	"docflow/internal/sdoc"
	"docflow/internal/services"
)

func (b *Builder) loadContentStep() pipeline.Step {
	return pipeline.Step{
		Name:         "load_content",
		Ordering:     phaseInit,
		RequiredData: []string{KeyPath},
		Provides:     []string{KeyContent},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			path, err := pipeline.Value[string](cargo, KeyPath)
			if err != nil {
				return nil, err
			}
			file, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, services.Wrap(services.ErrNotFound, "ingest", "load content", "source file missing", err)
				}
				return nil, fmt.Errorf("open source: %w", err)
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return nil, fmt.Errorf("stat source: %w", err)
			}
			limit := b.collab.MaxFileBytes
			if limit > 0 && info.Size() > limit {
				return nil, services.Wrap(services.ErrValidation, "ingest", "load content",
					fmt.Sprintf("file is %s, limit is %s", humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(limit))), nil)
			}
			content, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("read source: %w", err)
			}
			cargo.Set(KeyContent, content)
			return cargo, nil
		},
	}
}

func (b *Builder) registerDocumentStep() pipeline.Step {
	return pipeline.Step{
		Name:         "register_document",
		Ordering:     phaseInit + 10,
		RequiredData: []string{KeyProjectID, KeyFilename, KeyDocType, KeyMIMEType, KeyPath},
		Provides:     []string{KeySdocID},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			projectID, err := pipeline.Value[int64](cargo, KeyProjectID)
			if err != nil {
				return nil, err
			}
			docType, err := pipeline.Value[DocType](cargo, KeyDocType)
			if err != nil {
				return nil, err
			}
			doc, err := b.collab.Documents.Upsert(ctx, sdoc.Document{
				ProjectID:  projectID,
				Filename:   stringValue(cargo, KeyFilename),
				DocType:    string(docType),
				MIMEType:   stringValue(cargo, KeyMIMEType),
				SourcePath: stringValue(cargo, KeyPath),
				Status:     sdoc.StatusProcessing,
			})
			if err != nil {
				return nil, err
			}
			cargo.Set(KeySdocID, doc.ID)
			return cargo, nil
		},
	}
}

func stringValue(cargo *pipeline.Cargo, key string) string {
	value, _ := cargo.Get(key)
	s, _ := value.(string)
	return s
}

func metadataOf(cargo *pipeline.Cargo) map[string]any {
	if existing, ok := cargo.Get(KeyMetadata); ok {
		if m, ok := existing.(map[string]any); ok {
			return m
		}
	}
	m := map[string]any{}
	cargo.Set(KeyMetadata, m)
	return m
}
