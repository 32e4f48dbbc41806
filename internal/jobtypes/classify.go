package jobtypes

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/services"
	"docflow/internal/tracker"
)

// ClassifyInput is a batch of documents to label.
type ClassifyInput struct {
	ProjectID int64   `json:"project_id"`
	SdocIDs   []int64 `json:"sdoc_ids"`
}

// Validate implements jobs.Validator.
func (in ClassifyInput) Validate() error {
	if in.ProjectID <= 0 {
		return errors.New("project_id must be positive")
	}
	if len(in.SdocIDs) == 0 {
		return errors.New("sdoc_ids must not be empty")
	}
	for _, id := range in.SdocIDs {
		if id <= 0 {
			return fmt.Errorf("invalid sdoc id %d", id)
		}
	}
	return nil
}

// ClassifyOutput reports the batch result.
type ClassifyOutput struct {
	Labels  map[string]string `json:"labels"`
	Skipped int               `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// SdocEntity is the tracker entity ID of a document.
func SdocEntity(id int64) string {
	return "sdoc:" + strconv.FormatInt(id, 10)
}

func classifyHandler(deps Deps) jobs.HandlerFunc[ClassifyInput, ClassifyOutput] {
	return func(ctx context.Context, h *jobs.Handle, in ClassifyInput) (ClassifyOutput, error) {
		entities := make([]string, 0, len(in.SdocIDs))
		byEntity := make(map[string]int64, len(in.SdocIDs))
		for _, id := range in.SdocIDs {
			entity := SdocEntity(id)
			entities = append(entities, entity)
			byEntity[entity] = id
		}
		pending, err := deps.Tracker.Pending(ctx, TypeClassify, entities)
		if err != nil {
			return ClassifyOutput{}, err
		}
		out := ClassifyOutput{Labels: map[string]string{}, Skipped: len(entities) - len(pending)}
		if len(pending) == 0 {
			return out, nil
		}

		var (
			records []tracker.Record
			lastErr error
			stopped bool
		)
		for i, entity := range pending {
			if err := ctx.Err(); err != nil {
				return ClassifyOutput{}, err
			}
			if services.StopRequested(ctx) {
				stopped = true
				break
			}
			h.Progress(ctx, fmt.Sprintf("classifying %d of %d", i+1, len(pending)))
			label, err := classifyDocument(ctx, deps, byEntity[entity])
			if err != nil {
				lastErr = err
				if out.Failed == nil {
					out.Failed = map[string]string{}
				}
				out.Failed[entity] = err.Error()
				records = append(records, tracker.Record{EntityID: entity, JobType: TypeClassify, Status: queue.StatusError, Message: err.Error()})
				continue
			}
			out.Labels[entity] = label
			records = append(records, tracker.Record{EntityID: entity, JobType: TypeClassify, Status: queue.StatusFinished, Message: label})
		}

		// Document rows are keyed by sdoc entity; the job's own row is keyed
		// by the job and settled by the worker.
		if _, err := deps.Tracker.UpsertMany(ctx, records); err != nil {
			return ClassifyOutput{}, err
		}
		if stopped {
			return ClassifyOutput{}, fmt.Errorf("classified %d of %d documents: %w", len(out.Labels), len(pending), services.ErrStopRequested)
		}
		if len(out.Labels) == 0 {
			return ClassifyOutput{}, fmt.Errorf("no document classified: %w", lastErr)
		}
		if len(out.Failed) > 0 {
			logging.WarnWithContext(h.Logger(), "some documents were not classified", "classify_partial",
				logging.Int("failed", len(out.Failed)),
				logging.Int("classified", len(out.Labels)),
				logging.String(logging.FieldErrorHint, "resubmit the batch to retry only the failed documents"),
			)
		}
		return out, nil
	}
}

func classifyDocument(ctx context.Context, deps Deps, sdocID int64) (string, error) {
	text, err := deps.Documents.Content(ctx, sdocID)
	if err != nil {
		return "", err
	}
	result, err := deps.Classifier.Classify(ctx, text)
	if err != nil {
		return "", err
	}
	if err := deps.Documents.MergeMetadata(ctx, sdocID, map[string]any{
		"classification": map[string]any{"label": result.Label, "score": result.Score},
	}); err != nil {
		return "", err
	}
	return result.Label, nil
}
