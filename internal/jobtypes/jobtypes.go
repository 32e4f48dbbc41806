package jobtypes

import (
	"errors"
	"log/slog"
	"time"

	"docflow/internal/branch"
	"docflow/internal/classify"
	"docflow/internal/ingest"
	"docflow/internal/jobs"
	"docflow/internal/queue"
	"docflow/internal/sdoc"
	"docflow/internal/tracker"
)

// Registered job type names.
const (
	TypePreprocess     = "preprocess_document"
	TypeExtractArchive = "extract_archive"
	TypeClassify       = "classify_documents"
)

// Deps are the collaborators the handlers call.
type Deps struct {
	Builder         *ingest.Builder
	Documents       *sdoc.Store
	Tracker         *tracker.Tracker
	Classifier      classify.Classifier
	StagingDir      string
	MaxArchiveFiles int
	Logger          *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Builder == nil:
		return errors.New("job types: ingest builder is required")
	case d.Documents == nil:
		return errors.New("job types: document store is required")
	case d.Tracker == nil:
		return errors.New("job types: status tracker is required")
	case d.Classifier == nil:
		return errors.New("job types: classifier is required")
	case d.StagingDir == "":
		return errors.New("job types: staging dir is required")
	}
	return nil
}

// Register adds every job type to reg.
func Register(reg *jobs.Registry, deps Deps) error {
	if err := deps.validate(); err != nil {
		return err
	}
	if err := jobs.Register(reg, jobs.Definition[PreprocessInput, PreprocessOutput]{
		Type: TypePreprocess,
		Options: jobs.Options{
			Timeout:     10 * time.Minute,
			Retry:       jobs.RetryPolicy{MaxRetries: 2, Countdown: 5 * time.Second},
			Router:      true,
			Description: "run the media pipeline for one source file",
		},
		Handler: preprocessHandler(deps),
	}); err != nil {
		return err
	}
	if err := jobs.Register(reg, jobs.Definition[ArchiveInput, ArchiveOutput]{
		Type: TypeExtractArchive,
		Options: jobs.Options{
			Priority:    1,
			Timeout:     30 * time.Minute,
			Retry:       jobs.RetryPolicy{MaxRetries: 1, Countdown: 10 * time.Second},
			Router:      true,
			Description: "unpack a zip archive and import each file",
		},
		Handler: archiveHandler(deps),
	}); err != nil {
		return err
	}
	return jobs.Register(reg, jobs.Definition[ClassifyInput, ClassifyOutput]{
		Type: TypeClassify,
		Options: jobs.Options{
			Device:      queue.DeviceAPI,
			Timeout:     5 * time.Minute,
			Retry:       jobs.RetryPolicy{MaxRetries: 3, Countdown: 2 * time.Second, Incremental: true},
			Router:      true,
			Description: "label a batch of indexed documents",
		},
		Handler: classifyHandler(deps),
	})
}

// Operators returns the branch operators chaining the job types.
func Operators() []branch.Operator {
	archiveLoop := branch.NewLoop(TypeExtractArchive, TypePreprocess,
		func(out ArchiveOutput) ([]ExtractedFile, error) { return out.Files, nil },
		func(file ExtractedFile, _ int) (any, error) {
			return PreprocessInput{ProjectID: file.ProjectID, Path: file.Path, Filename: file.Filename}, nil
		},
	)
	classifyText := branch.NewSwitch(TypePreprocess,
		func(out PreprocessOutput) (string, error) { return string(out.DocType), nil },
	).On(string(ingest.DocTypeText), TypeClassify, func(out PreprocessOutput) (any, error) {
		return ClassifyInput{ProjectID: out.ProjectID, SdocIDs: []int64{out.SdocID}}, nil
	})
	return []branch.Operator{archiveLoop, classifyText}
}
