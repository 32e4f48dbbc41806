package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/services"
	"docflow/internal/tracker"
)

// errTimedOut is the cancellation cause when a job exceeds its timeout.
var errTimedOut = errors.New("job timed out")

type outcome struct {
	status  queue.Status
	message string
	output  json.RawMessage
	err     error
}

// Execute runs a claimed RUNNING job to a terminal state. The returned error
// is non-nil only when the job could not be settled, for example because ctx
// ended mid-run; such jobs stay RUNNING.
func (m *Manager) Execute(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithJobType(jobCtx, job.Type)
	jobCtx = services.WithDevice(jobCtx, string(job.Device))
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	logger := logging.WithContext(jobCtx, m.logger).With(logging.String(logging.FieldEntityID, job.EntityID))
	m.setLastJob(job)

	desc, err := m.registry.Lookup(job.Type)
	if err != nil {
		return m.settle(jobCtx, logger, job, outcome{status: queue.StatusError, message: err.Error(), err: err})
	}

	m.recordStatus(jobCtx, logger, job, queue.StatusRunning, "")
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("max_retries", job.MaxRetries),
		logging.Duration("timeout", job.Timeout),
	)
	started := time.Now()

	// Abort is a stop signal checked between steps; only timeout and
	// shutdown cancel the context handlers run under.
	aborted := make(chan struct{})
	var abortOnce sync.Once
	runCtx, cancelRun := context.WithCancel(services.WithStopSignal(jobCtx, aborted))
	defer cancelRun()
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		m.heartbeat.beat(runCtx, job.ID, func() { abortOnce.Do(func() { close(aborted) }) })
	}()

	result := m.attempts(runCtx, logger, job, desc)
	cancelRun()
	hbWG.Wait()

	if result.status == "" {
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
		return job, ctx.Err()
	}
	final, err := m.settle(jobCtx, logger, job, result)
	if err == nil {
		logger.Debug("job duration", logging.Duration("job_duration", time.Since(started)))
	}
	return final, err
}

// attempts invokes the handler until it succeeds, fails permanently or runs
// out of retries. An empty status means the parent context ended.
func (m *Manager) attempts(ctx context.Context, logger *slog.Logger, job *queue.Job, desc *jobs.Descriptor) outcome {
	for retry := 0; ; retry++ {
		if cause := stopCause(ctx); cause != nil {
			return cause.outcome()
		}
		attempt, err := m.store.RecordAttempt(ctx, job.ID)
		if err != nil {
			if cause := stopCause(ctx); cause != nil {
				return cause.outcome()
			}
			return outcome{status: queue.StatusError, message: err.Error(), err: err}
		}
		job.Attempts = attempt

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if job.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeoutCause(ctx, job.Timeout, errTimedOut)
		}
		handle := jobs.NewHandle(job, attempt, m.store, logger.With(logging.Int("attempt", attempt)))
		output, err := desc.Invoke(attemptCtx, handle, job.Input)
		timedOut := errors.Is(context.Cause(attemptCtx), errTimedOut)
		cancel()

		if cause := stopCause(ctx); cause != nil {
			return cause.outcome()
		}
		if timedOut {
			msg := fmt.Sprintf("timed out after %s", job.Timeout)
			return outcome{status: queue.StatusError, message: msg, err: fmt.Errorf("%w: %s", services.ErrTimeout, msg)}
		}
		if err == nil {
			return outcome{status: queue.StatusFinished, message: handle.Job().StatusMessage, output: output}
		}
		if services.IsPermanent(err) {
			return outcome{status: queue.StatusError, message: failureMessage(err), err: err}
		}
		if retry >= job.MaxRetries {
			msg := failureMessage(err)
			if attempt > 1 {
				msg = fmt.Sprintf("failed after %d attempts: %s", attempt, msg)
			}
			return outcome{status: queue.StatusError, message: msg, err: err}
		}

		delay := job.RetryDelay(retry + 1)
		msg := fmt.Sprintf("attempt %d failed: %s; retrying in %s", attempt, failureMessage(err), delay)
		logging.WarnWithContext(logger, "job attempt failed; retrying", "job_retry",
			logging.Int("attempt", attempt),
			logging.Duration("retry_delay", delay),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "transient failure, will retry"),
			logging.Error(err),
		)
		if err := m.store.SetMessage(ctx, job.ID, msg); err != nil && ctx.Err() == nil {
			logger.Warn("failed to persist retry message", logging.Error(err))
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
			case <-services.StopSignal(ctx):
			case <-timer.C:
			}
			timer.Stop()
			if cause := stopCause(ctx); cause != nil {
				return cause.outcome()
			}
		}
	}
}

type stop struct {
	aborted bool
}

// stopCause reports why the job should stop: an observed abort, or the
// parent (shutdown) context ending. It is nil while the job may continue.
func stopCause(ctx context.Context) *stop {
	if services.StopRequested(ctx) {
		return &stop{aborted: true}
	}
	if ctx.Err() != nil {
		return &stop{}
	}
	return nil
}

func (s *stop) outcome() outcome {
	if s.aborted {
		return outcome{status: queue.StatusAborted, message: "aborted while running"}
	}
	return outcome{}
}

func failureMessage(err error) string {
	if err == nil {
		return "failed without error detail"
	}
	details := services.Details(err)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(err.Error())
	}
	return message
}

// settle records the terminal transition, the tracker row and the event.
func (m *Manager) settle(ctx context.Context, logger *slog.Logger, job *queue.Job, result outcome) (*queue.Job, error) {
	updated, err := m.store.Transition(ctx, job.ID, queue.StatusRunning, result.status, queue.Outcome{
		Message: result.message,
		Output:  result.output,
	})
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to persist job outcome",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_persist_failed"),
			logging.String(logging.FieldErrorHint, "job may have been reclaimed; check heartbeat settings"),
		)
		return job, err
	}
	m.setLastJob(updated)
	m.recordStatus(ctx, logger, updated, updated.Status, updated.StatusMessage)

	switch updated.Status {
	case queue.StatusFinished:
		logger.Info("job finished",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Int("attempts", updated.Attempts),
		)
	case queue.StatusAborted:
		logger.Info("job aborted", logging.String(logging.FieldEventType, "job_aborted"))
	default:
		m.setLastError(result.err)
		attrs := append([]logging.Attr{
			logging.String(logging.FieldEventType, "job_failure"),
			logging.String("error_message", updated.StatusMessage),
			logging.Int("attempts", updated.Attempts),
		}, logging.ErrorAttrs(result.err)...)
		logger.Error("job failed", logging.Args(attrs...)...)
	}

	m.bus.Publish(ctx, events.Event{
		Signal:   signalFor(updated.Status),
		JobID:    updated.ID,
		JobType:  updated.Type,
		EntityID: updated.EntityID,
		ParentID: updated.ParentID,
		Status:   string(updated.Status),
		Message:  updated.StatusMessage,
		Output:   updated.Output,
	})
	return updated, nil
}

func signalFor(status queue.Status) events.Signal {
	switch status {
	case queue.StatusFinished:
		return events.SignalJobFinished
	case queue.StatusAborted:
		return events.SignalJobAborted
	default:
		return events.SignalJobFailed
	}
}

func (m *Manager) recordStatus(ctx context.Context, logger *slog.Logger, job *queue.Job, status queue.Status, message string) {
	if m.tracker == nil {
		return
	}
	rec, err := m.tracker.Upsert(ctx, tracker.Record{
		EntityID: job.EntityID,
		JobType:  job.Type,
		Status:   status,
		Message:  message,
	})
	if err != nil {
		logging.WarnWithContext(logger, "failed to record entity status", "tracker_write_failed",
			logging.String("status", string(status)),
			logging.String(logging.FieldErrorHint, "tracker row may be stale until the next run"),
			logging.Error(err),
		)
		return
	}
	m.bus.Publish(ctx, events.Event{
		Signal:    events.SignalEntityStatus,
		Timestamp: rec.Timestamp,
		JobID:     job.ID,
		JobType:   job.Type,
		EntityID:  job.EntityID,
		Status:    string(status),
		Message:   message,
	})
}
