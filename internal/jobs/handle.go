package jobs

import (
	"context"
	"log/slog"
	"strings"

	"docflow/internal/logging"
	"docflow/internal/queue"
)

// MessageStore persists progress text for a running job.
type MessageStore interface {
	SetMessage(ctx context.Context, id, message string) error
}

// Handle is a handler's view of the job it is executing.
type Handle struct {
	job     queue.Job
	attempt int
	store   MessageStore
	logger  *slog.Logger
}

// NewHandle builds the handle passed to a handler for one attempt.
func NewHandle(job *queue.Job, attempt int, store MessageStore, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handle{attempt: attempt, store: store, logger: logger}
	if job != nil {
		h.job = *job
	}
	return h
}

// Job returns a snapshot of the job record as claimed.
func (h *Handle) Job() queue.Job { return h.job }

// Attempt is the 1-based invocation number.
func (h *Handle) Attempt() int { return h.attempt }

// Logger is scoped to the job.
func (h *Handle) Logger() *slog.Logger { return h.logger }

// SetMessage records progress text on the job.
func (h *Handle) SetMessage(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	h.job.StatusMessage = message
	if h.store == nil {
		return nil
	}
	return h.store.SetMessage(ctx, h.job.ID, message)
}

// Progress is SetMessage for handlers that keep going when the message
// cannot be stored. Failures are logged as warnings.
func (h *Handle) Progress(ctx context.Context, message string) {
	if err := h.SetMessage(ctx, message); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(h.logger, "failed to persist progress message", "job_progress",
			logging.String("progress", h.job.StatusMessage),
			logging.String(logging.FieldErrorHint, "check database health"),
			logging.Error(err),
		)
	}
}
