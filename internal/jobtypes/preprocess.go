package jobtypes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wailsapp/mimetype"

	"docflow/internal/ingest"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/services"
)

// PreprocessInput names one source file. An empty MIMEType is sniffed from
// the file content.
type PreprocessInput struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
	Filename  string `json:"filename,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`
}

// Validate implements jobs.Validator.
func (in PreprocessInput) Validate() error {
	if in.ProjectID <= 0 {
		return errors.New("project_id must be positive")
	}
	if strings.TrimSpace(in.Path) == "" {
		return errors.New("path is required")
	}
	if in.MIMEType != "" {
		if _, err := ingest.DocTypeForMIME(in.MIMEType); err != nil {
			return err
		}
	}
	return nil
}

// EntityID implements jobs.EntityIdentifier.
func (in PreprocessInput) EntityID() string {
	return ingest.Request{ProjectID: in.ProjectID, Path: in.Path, Filename: in.Filename}.EntityID()
}

// PreprocessOutput describes the ingested document.
type PreprocessOutput struct {
	ProjectID int64          `json:"project_id"`
	SdocID    int64          `json:"sdoc_id"`
	DocType   ingest.DocType `json:"doc_type"`
	MIMEType  string         `json:"mime_type"`
	Steps     []string       `json:"steps"`
	Indexed   bool           `json:"indexed"`
	Embedded  bool           `json:"embedded"`
	Links     []int64        `json:"links,omitempty"`
}

// Validate implements jobs.Validator.
func (out PreprocessOutput) Validate() error {
	if out.SdocID <= 0 {
		return errors.New("sdoc_id missing")
	}
	return nil
}

func preprocessHandler(deps Deps) jobs.HandlerFunc[PreprocessInput, PreprocessOutput] {
	return func(ctx context.Context, h *jobs.Handle, in PreprocessInput) (PreprocessOutput, error) {
		mimeType := in.MIMEType
		if mimeType == "" {
			detected, err := sniffMIME(in.Path)
			if err != nil {
				return PreprocessOutput{}, err
			}
			mimeType = detected
			h.Logger().Debug("mime type sniffed", logging.String("mime_type", mimeType))
		}
		h.Progress(ctx, "preprocessing "+mimeType)

		result, err := deps.Builder.Process(ctx, ingest.Request{
			ProjectID: in.ProjectID,
			Path:      in.Path,
			Filename:  in.Filename,
			MIMEType:  mimeType,
		})
		if err != nil {
			return PreprocessOutput{}, err
		}
		h.Progress(ctx, fmt.Sprintf("document %d ready", result.SdocID))
		return PreprocessOutput{
			ProjectID: in.ProjectID,
			SdocID:    result.SdocID,
			DocType:   result.DocType,
			MIMEType:  mimeType,
			Steps:     result.Steps,
			Indexed:   result.Indexed,
			Embedded:  result.Embedded,
			Links:     result.Links,
		}, nil
	}
}

func sniffMIME(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "preprocess", "detect mime type", "source file missing", err)
		}
		return "", fmt.Errorf("detect mime type: %w", err)
	}
	return mt.String(), nil
}
