package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docflow/internal/sqlitedb"
)

// Outcome carries the fields written alongside a status change.
type Outcome struct {
	// Message replaces status_message when non-empty.
	Message string
	// Output is stored only on transitions to FINISHED.
	Output json.RawMessage
}

// Transition moves a job from one status to another. The move is refused with
// a *TransitionError when the job is not currently in from or the edge is not
// part of the state machine.
func (s *Store) Transition(ctx context.Context, id string, from, to Status, outcome Outcome) (*Job, error) {
	var updated *Job
	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		job, err := getJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status != from || !CanTransition(from, to) {
			return &TransitionError{JobID: id, Current: job.Status, From: from, To: to}
		}

		now := time.Now().UTC()
		job.Status = to
		job.UpdatedAt = now
		if outcome.Message != "" {
			job.StatusMessage = outcome.Message
		}
		switch {
		case to.IsTerminal():
			job.FinishedAt = &now
			if to == StatusFinished {
				job.Output = outcome.Output
			}
		case to == StatusWaiting:
			job.StartedAt = nil
			job.LastHeartbeat = nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs
            SET status = ?, status_message = ?, output_json = ?, updated_at = ?,
                started_at = ?, finished_at = ?, last_heartbeat = ?, expires_at = ?
            WHERE id = ?`,
			job.Status,
			sqlitedb.NullableString(job.StatusMessage),
			nullableJSON(job.Output),
			sqlitedb.FormatTime(now),
			sqlitedb.NullableTime(job.StartedAt),
			sqlitedb.NullableTime(job.FinishedAt),
			sqlitedb.NullableTime(job.LastHeartbeat),
			sqlitedb.NullableTime(job.ExpiresAt()),
			id,
		); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequestAbort aborts a WAITING job immediately and flags a RUNNING job so its
// worker stops after the current step. Terminal jobs are refused.
func (s *Store) RequestAbort(ctx context.Context, id string) (*Job, error) {
	var result *Job
	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		job, err := getJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		switch job.Status {
		case StatusWaiting:
			job.Status = StatusAborted
			job.FinishedAt = &now
			job.StatusMessage = "aborted before start"
		case StatusRunning:
			job.AbortRequested = true
		default:
			return &TransitionError{JobID: id, Current: job.Status, To: StatusAborted}
		}
		job.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs
            SET status = ?, abort_requested = ?, status_message = ?, finished_at = ?, expires_at = ?, updated_at = ?
            WHERE id = ?`,
			job.Status,
			sqlitedb.BoolToInt(job.AbortRequested),
			sqlitedb.NullableString(job.StatusMessage),
			sqlitedb.NullableTime(job.FinishedAt),
			sqlitedb.NullableTime(job.ExpiresAt()),
			sqlitedb.FormatTime(now),
			id,
		); err != nil {
			return fmt.Errorf("request abort: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Heartbeat stamps last_heartbeat on a RUNNING job and reports whether an
// abort has been requested for it.
func (s *Store) Heartbeat(ctx context.Context, id string) (bool, error) {
	now := sqlitedb.Now()
	var abort int
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?
            RETURNING abort_requested`,
			now, now, id, StatusRunning,
		).Scan(&abort)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: job %s is not running", ErrInvalidTransition, id)
	}
	if err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}
	return abort != 0, nil
}

// SetMessage persists a progress message for a job.
func (s *Store) SetMessage(ctx context.Context, id, message string) error {
	res, err := s.exec(ctx,
		`UPDATE jobs SET status_message = ?, updated_at = ? WHERE id = ?`,
		sqlitedb.NullableString(message), sqlitedb.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set job message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// RecordAttempt increments and returns the handler invocation count.
func (s *Store) RecordAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE jobs SET attempts = attempts + 1, updated_at = ? WHERE id = ? RETURNING attempts`,
			sqlitedb.Now(), id,
		).Scan(&attempts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	return attempts, nil
}

// ResetRunning returns every RUNNING job to WAITING. Jobs with a pending abort
// request are aborted instead. Call only while no worker is active, such as at
// daemon start.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	return s.requeueRunning(ctx, "", "reset after daemon restart")
}

// ReclaimStale requeues RUNNING jobs whose heartbeat is older than cutoff.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.requeueRunning(ctx, sqlitedb.FormatTime(cutoff), "reclaimed from stale worker")
}

func (s *Store) requeueRunning(ctx context.Context, cutoff, message string) (int64, error) {
	now := sqlitedb.Now()
	query := `UPDATE jobs
        SET status = CASE abort_requested WHEN 1 THEN ? ELSE ? END,
            finished_at = CASE abort_requested WHEN 1 THEN ? ELSE NULL END,
            started_at = CASE abort_requested WHEN 1 THEN started_at ELSE NULL END,
            status_message = ?, last_heartbeat = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusAborted, StatusWaiting, now, message, now, StatusRunning}
	if cutoff != "" {
		query += ` AND (last_heartbeat IS NULL OR last_heartbeat < ?)`
		args = append(args, cutoff)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue running jobs: %w", err)
	}
	return res.RowsAffected()
}

func getJobTx(ctx context.Context, tx *sql.Tx, id string) (*Job, error) {
	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}
