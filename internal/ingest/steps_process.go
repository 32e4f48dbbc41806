package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"

	"docflow/internal/pipeline"
	"docflow/internal/services"
)

func normalizeTextStep() pipeline.Step {
	return pipeline.Step{
		Name:         "normalize_text",
		Ordering:     phaseProcess,
		RequiredData: []string{KeyContent},
		Provides:     []string{KeyText},
		Run: func(_ context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			content, err := pipeline.Value[[]byte](cargo, KeyContent)
			if err != nil {
				return nil, err
			}
			cargo.Set(KeyText, NormalizeText(content))
			return cargo, nil
		},
	}
}

// NormalizeText converts raw bytes to NFC text with invalid UTF-8 replaced,
// line endings unified and runs of spaces collapsed.
func NormalizeText(content []byte) string {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func textMetadataStep() pipeline.Step {
	return pipeline.Step{
		Name:         "text_metadata",
		Ordering:     phaseProcess + 10,
		RequiredData: []string{KeyText},
		Provides:     []string{KeyMetadata},
		Run: func(_ context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			text, err := pipeline.Value[string](cargo, KeyText)
			if err != nil {
				return nil, err
			}
			meta := metadataOf(cargo)
			meta["word_count"] = len(strings.Fields(text))
			meta["char_count"] = utf8.RuneCountInString(text)
			lines := 0
			if text != "" {
				lines = strings.Count(text, "\n") + 1
			}
			meta["line_count"] = lines
			return cargo, nil
		},
	}
}

func imageMetadataStep() pipeline.Step {
	return pipeline.Step{
		Name:         "image_metadata",
		Ordering:     phaseProcess,
		RequiredData: []string{KeyContent},
		Provides:     []string{KeyMetadata},
		Run: func(_ context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			content, err := pipeline.Value[[]byte](cargo, KeyContent)
			if err != nil {
				return nil, err
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "ingest", "image metadata", "unreadable image header", err)
			}
			meta := metadataOf(cargo)
			meta["width"] = cfg.Width
			meta["height"] = cfg.Height
			meta["format"] = format
			meta["size_bytes"] = len(content)
			return cargo, nil
		},
	}
}

func mediaMetadataStep() pipeline.Step {
	return pipeline.Step{
		Name:         "media_metadata",
		Ordering:     phaseProcess,
		RequiredData: []string{KeyContent, KeyFilename},
		Provides:     []string{KeyMetadata},
		Run: func(_ context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			content, err := pipeline.Value[[]byte](cargo, KeyContent)
			if err != nil {
				return nil, err
			}
			meta := metadataOf(cargo)
			meta["size_bytes"] = len(content)
			meta["size"] = humanize.Bytes(uint64(len(content)))
			meta["extension"] = strings.TrimPrefix(strings.ToLower(filepath.Ext(stringValue(cargo, KeyFilename))), ".")
			return cargo, nil
		},
	}
}

func (b *Builder) enrichStep(docType DocType) pipeline.Step {
	return pipeline.Step{
		Name:         "enrich",
		Ordering:     phaseProcess + 50,
		RequiredData: []string{KeySdocID, KeyMetadata},
		Provides:     []string{KeyEnrichment},
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			sdocID, err := pipeline.Value[int64](cargo, KeySdocID)
			if err != nil {
				return nil, err
			}
			content, _ := cargo.Get(KeyContent)
			raw, _ := content.([]byte)
			in := EnrichInput{
				SdocID:   sdocID,
				DocType:  docType,
				Filename: stringValue(cargo, KeyFilename),
				MIMEType: stringValue(cargo, KeyMIMEType),
				Content:  raw,
				Text:     stringValue(cargo, KeyText),
			}

			applied := []string{}
			meta := metadataOf(cargo)
			for _, enricher := range b.collab.Enrichers {
				if !enricher.Supports(docType) {
					continue
				}
				values, err := enricher.Enrich(ctx, in)
				if err != nil {
					return nil, fmt.Errorf("enricher %s: %w", enricher.Name(), err)
				}
				if transcript, ok := values["transcript"].(string); ok && in.Text == "" {
					in.Text = transcript
					cargo.Set(KeyText, transcript)
				}
				meta[enricher.Name()] = values
				applied = append(applied, enricher.Name())
			}
			cargo.Set(KeyEnrichment, applied)
			return cargo, nil
		},
	}
}
