package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docflow/internal/pipeline"
	"docflow/internal/sdoc"
)

func (b *Builder) storeMetadataStep() pipeline.Step {
	return pipeline.Step{
		Name:         "store_metadata",
		Ordering:     phaseStorage,
		RequiredData: []string{KeySdocID, KeyMetadata},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			if err := b.collab.Documents.MergeMetadata(ctx, sdocID, metadataOf(cargo)); err != nil {
				return nil, err
			}
			return cargo, nil
		},
	}
}

func (b *Builder) indexContentStep() pipeline.Step {
	return pipeline.Step{
		Name:         "index_content",
		Ordering:     phaseStorage + 10,
		RequiredData: []string{KeySdocID, KeyProjectID},
		Provides:     []string{KeyIndexed},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			text := stringValue(cargo, KeyText)
			if text == "" || b.collab.Search == nil {
				cargo.Set(KeyIndexed, false)
				return cargo, nil
			}
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			projectID, err := pipeline.Value[int64](cargo, KeyProjectID)
			if err != nil {
				return nil, err
			}
			if err := b.collab.Search.IndexContent(ctx, sdocID, projectID, text); err != nil {
				return nil, err
			}
			cargo.Set(KeyIndexed, true)
			return cargo, nil
		},
	}
}

func (b *Builder) storeEmbeddingStep() pipeline.Step {
	return pipeline.Step{
		Name:         "store_embedding",
		Ordering:     phaseStorage + 20,
		RequiredData: []string{KeySdocID},
		Provides:     []string{KeyEmbedded},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			text := stringValue(cargo, KeyText)
			if text == "" || b.collab.Embedder == nil || b.collab.Vectors == nil {
				cargo.Set(KeyEmbedded, false)
				return cargo, nil
			}
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			vector, err := b.collab.Embedder.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed document %d: %w", sdocID, err)
			}
			if err := b.collab.Vectors.StoreEmbedding(ctx, sdocID, vector); err != nil {
				return nil, err
			}
			cargo.Set(KeyEmbedded, true)
			return cargo, nil
		},
	}
}

func (b *Builder) resolveLinksStep() pipeline.Step {
	return pipeline.Step{
		Name:         "resolve_links",
		Ordering:     phaseFinalize,
		RequiredData: []string{KeySdocID, KeyProjectID},
		Provides:     []string{KeyLinks},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			projectID, err := pipeline.Value[int64](cargo, KeyProjectID)
			if err != nil {
				return nil, err
			}
			var targets []int64
			if text := strings.ToLower(stringValue(cargo, KeyText)); text != "" {
				docs, err := b.collab.Documents.ListProject(ctx, projectID)
				if err != nil {
					return nil, err
				}
				targets = linkedDocuments(text, sdocID, docs)
			}
			if err := b.collab.Documents.ReplaceLinks(ctx, sdocID, targets); err != nil {
				return nil, err
			}
			cargo.Set(KeyLinks, targets)
			return cargo, nil
		},
	}
}

// linkedDocuments returns the IDs of docs whose filename occurs in text.
func linkedDocuments(text string, self int64, docs []sdoc.Document) []int64 {
	var targets []int64
	for _, doc := range docs {
		if doc.ID == self || doc.Filename == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(doc.Filename)) {
			targets = append(targets, doc.ID)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

func (b *Builder) markFinishedStep() pipeline.Step {
	return pipeline.Step{
		Name:         "mark_finished",
		Ordering:     phaseFinalize + 10,
		RequiredData: []string{KeySdocID},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			if err := b.collab.Documents.SetStatus(ctx, sdocID, sdoc.StatusFinished); err != nil {
				return nil, err
			}
			return cargo, nil
		},
	}
}
