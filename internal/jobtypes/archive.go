package jobtypes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/textutil"
)

// ArchiveInput names a zip archive to import into a project.
type ArchiveInput struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
}

// Validate implements jobs.Validator.
func (in ArchiveInput) Validate() error {
	if in.ProjectID <= 0 {
		return errors.New("project_id must be positive")
	}
	if strings.TrimSpace(in.Path) == "" {
		return errors.New("path is required")
	}
	return nil
}

// ExtractedFile is one regular file unpacked from an archive.
type ExtractedFile struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Size      uint64 `json:"size"`
}

// ArchiveOutput lists the unpacked files in archive order.
type ArchiveOutput struct {
	ProjectID int64           `json:"project_id"`
	Directory string          `json:"directory"`
	Files     []ExtractedFile `json:"files"`
}

func archiveHandler(deps Deps) jobs.HandlerFunc[ArchiveInput, ArchiveOutput] {
	return func(ctx context.Context, h *jobs.Handle, in ArchiveInput) (ArchiveOutput, error) {
		dest := filepath.Join(deps.StagingDir, "archives", h.Job().ID)
		files, err := extractZip(ctx, in.Path, dest, deps.MaxArchiveFiles)
		if err != nil {
			return ArchiveOutput{}, err
		}
		var total uint64
		for i := range files {
			files[i].ProjectID = in.ProjectID
			total += files[i].Size
		}
		h.Logger().Info("archive extracted",
			logging.String(logging.FieldEventType, "archive_extracted"),
			logging.Int("files", len(files)),
			logging.String("size", humanize.Bytes(total)),
		)
		h.Progress(ctx, fmt.Sprintf("extracted %d files (%s)", len(files), humanize.Bytes(total)))
		return ArchiveOutput{ProjectID: in.ProjectID, Directory: dest, Files: files}, nil
	}
}

// extractZip unpacks the regular files of archive into dest. Entries that
// would land outside dest are refused. Re-running overwrites earlier output.
func extractZip(ctx context.Context, archive, dest string, maxFiles int) ([]ExtractedFile, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "archive", "open", "archive missing", err)
		}
		return nil, services.Wrap(services.ErrValidation, "archive", "open", "not a readable zip archive", err)
	}
	defer reader.Close()

	var entries []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
			continue
		}
		entries = append(entries, f)
	}
	if maxFiles > 0 && len(entries) > maxFiles {
		return nil, services.Wrap(services.ErrValidation, "archive", "extract",
			fmt.Sprintf("archive holds %d files, limit is %d", len(entries), maxFiles), nil)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	files := make([]ExtractedFile, 0, len(entries))
	for _, f := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if services.StopRequested(ctx) {
			return nil, services.ErrStopRequested
		}
		target, rel, err := safeJoin(dest, f.Name)
		if err != nil {
			return nil, err
		}
		written, err := extractEntry(f, target)
		if err != nil {
			return nil, err
		}
		files = append(files, ExtractedFile{Path: target, Filename: archiveFilename(rel), Size: written})
	}
	return files, nil
}

// safeJoin resolves an entry name below dest. It returns the target path and
// the slash-separated path relative to dest. Absolute names and names with a
// ".." segment are refused.
func safeJoin(dest, name string) (string, string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")
	escapes := path.IsAbs(normalized) || slices.Contains(strings.Split(normalized, "/"), "..")
	rel := path.Clean(normalized)
	if escapes || rel == "." || rel == "" {
		return "", "", services.Wrap(services.ErrValidation, "archive", "extract",
			fmt.Sprintf("entry %q escapes the extraction directory", name), nil)
	}
	return filepath.Join(dest, filepath.FromSlash(rel)), rel, nil
}

// archiveFilename keeps the folder structure of an entry so that equal base
// names in different folders stay distinct documents.
func archiveFilename(rel string) string {
	segments := strings.Split(rel, "/")
	for i, segment := range segments {
		segments[i] = textutil.SanitizeFileName(segment)
	}
	return strings.Join(segments, "/")
}

func extractEntry(f *zip.File, target string) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", f.Name, err)
	}
	src, err := f.Open()
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "archive", "extract", "corrupt entry "+f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", target, err)
	}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return 0, services.Wrap(services.ErrValidation, "archive", "extract", "corrupt entry "+f.Name, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close %s: %w", target, closeErr)
	}
	return uint64(n), nil
}
