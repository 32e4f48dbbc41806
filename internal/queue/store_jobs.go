package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docflow/internal/sqlitedb"
)

// Create inserts a WAITING job. ID, EntityID and timestamps are filled when
// blank; the caller's struct is updated in place.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("create job: nil job")
	}
	if strings.TrimSpace(job.Type) == "" {
		return errors.New("create job: type is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EntityID == "" {
		job.EntityID = job.ID
	}
	if job.Device == "" {
		job.Device = DeviceCPU
	}
	if len(job.Input) == 0 {
		job.Input = []byte("null")
	}
	now := time.Now().UTC()
	job.Status = StatusWaiting
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Attempts = 0

	_, err := s.exec(ctx,
		`INSERT INTO jobs (id, job_type, status, device, priority, input_json, timeout_ms, result_ttl_ms,
            max_retries, retry_countdown_ms, retry_incremental, attempts, status_message, entity_id,
            parent_id, branch_index, abort_requested, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID,
		job.Type,
		job.Status,
		job.Device,
		job.Priority,
		string(job.Input),
		toMillis(job.Timeout),
		toMillis(job.ResultTTL),
		job.MaxRetries,
		toMillis(job.RetryCountdown),
		sqlitedb.BoolToInt(job.RetryIncremental),
		sqlitedb.NullableString(job.StatusMessage),
		job.EntityID,
		sqlitedb.NullableString(job.ParentID),
		nullableIndex(job.BranchIndex),
		sqlitedb.FormatTime(now),
		sqlitedb.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job. Missing jobs return ErrJobNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+sqlitedb.Placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Type != "" {
		clauses = append(clauses, "job_type = ?")
		args = append(args, filter.Type)
	}
	if filter.ParentID != "" {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// Children returns the jobs enqueued from parentID ordered by branch index.
func (s *Store) Children(ctx context.Context, parentID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE parent_id = ? ORDER BY branch_index, created_at, rowid`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child jobs: %w", err)
	}
	return scanJobs(rows)
}

// ClaimNext atomically moves the highest priority, oldest WAITING job of the
// device lane to RUNNING and returns it. It returns nil when the lane is empty.
func (s *Store) ClaimNext(ctx context.Context, device Device) (*Job, error) {
	now := sqlitedb.Now()
	var job *Job
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
            SET status = ?, started_at = ?, updated_at = ?, last_heartbeat = ?
            WHERE id = (
                SELECT id FROM jobs
                WHERE device = ? AND status = ?
                ORDER BY priority DESC, created_at ASC, rowid ASC
                LIMIT 1
            ) AND status = ?
            RETURNING `+jobColumns,
			StatusRunning, now, now, now,
			device, StatusWaiting,
			StatusWaiting,
		)
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", device, err)
	}
	return job, nil
}
