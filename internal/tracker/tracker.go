package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docflow/internal/queue"
	"docflow/internal/sqlitedb"
)

// ErrNotFound means the job type was never attempted for the entity.
var ErrNotFound = errors.New("status record not found")

const schemaVersion = 1

const schemaSQL = `CREATE TABLE IF NOT EXISTS job_status (
    entity_id TEXT NOT NULL,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (entity_id, job_type)
);
CREATE INDEX IF NOT EXISTS idx_job_status_type ON job_status(job_type, status);`

// Record is one status row.
type Record struct {
	EntityID  string       `json:"entity_id"`
	JobType   string       `json:"job_type"`
	Status    queue.Status `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Message   string       `json:"message,omitempty"`
}

// Tracker reads and writes status rows in the shared database.
type Tracker struct {
	db  *sql.DB
	now func() time.Time
}

// New attaches a tracker to db, creating its table on first use.
func New(ctx context.Context, db *sql.DB) (*Tracker, error) {
	if db == nil {
		return nil, errors.New("tracker: database handle is required")
	}
	if err := sqlitedb.EnsureSchema(ctx, db, "tracker", schemaVersion, schemaSQL); err != nil {
		return nil, err
	}
	return &Tracker{db: db, now: time.Now}, nil
}

// UpsertMany replaces the rows for every key in records within a single
// transaction and returns the rows as written. When a key repeats inside the
// batch the last record wins.
func (t *Tracker) UpsertMany(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	now := t.now().UTC()
	positions := make(map[[2]string]int, len(records))
	batch := make([]Record, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.EntityID) == "" || strings.TrimSpace(rec.JobType) == "" {
			return nil, errors.New("status record requires entity_id and job_type")
		}
		if rec.Status == "" {
			return nil, fmt.Errorf("status record %s/%s: status is required", rec.EntityID, rec.JobType)
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		rec.Timestamp = rec.Timestamp.UTC()
		key := [2]string{rec.EntityID, rec.JobType}
		if idx, ok := positions[key]; ok {
			batch[idx] = rec
			continue
		}
		positions[key] = len(batch)
		batch = append(batch, rec)
	}

	err := sqlitedb.InTx(ctx, t.db, func(tx *sql.Tx) error {
		for _, rec := range batch {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM job_status WHERE entity_id = ? AND job_type = ?`,
				rec.EntityID, rec.JobType,
			); err != nil {
				return fmt.Errorf("delete status %s/%s: %w", rec.EntityID, rec.JobType, err)
			}
		}
		for _, rec := range batch {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_status (entity_id, job_type, status, message, updated_at) VALUES (?, ?, ?, ?, ?)`,
				rec.EntityID, rec.JobType, rec.Status, sqlitedb.NullableString(rec.Message), sqlitedb.FormatTime(rec.Timestamp),
			); err != nil {
				return fmt.Errorf("insert status %s/%s: %w", rec.EntityID, rec.JobType, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Upsert writes a single record.
func (t *Tracker) Upsert(ctx context.Context, rec Record) (Record, error) {
	written, err := t.UpsertMany(ctx, []Record{rec})
	if err != nil {
		return Record{}, err
	}
	return written[0], nil
}

// Get returns the row for the key or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, entityID, jobType string) (Record, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT entity_id, job_type, status, message, updated_at FROM job_status WHERE entity_id = ? AND job_type = ?`,
		entityID, jobType,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, entityID, jobType)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read status %s/%s: %w", entityID, jobType, err)
	}
	return rec, nil
}

// StatusByType returns only the status for the key or ErrNotFound.
func (t *Tracker) StatusByType(ctx context.Context, entityID, jobType string) (queue.Status, error) {
	rec, err := t.Get(ctx, entityID, jobType)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// ListEntity returns every row for an entity ordered by job type.
func (t *Tracker) ListEntity(ctx context.Context, entityID string) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT entity_id, job_type, status, message, updated_at FROM job_status WHERE entity_id = ? ORDER BY job_type`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entity status: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// statuses loads the rows of jobType for the given entities keyed by entity.
func (t *Tracker) statuses(ctx context.Context, jobType string, entityIDs []string) (map[string]queue.Status, error) {
	result := make(map[string]queue.Status, len(entityIDs))
	const chunk = 500
	for start := 0; start < len(entityIDs); start += chunk {
		end := min(start+chunk, len(entityIDs))
		ids := entityIDs[start:end]
		args := make([]any, 0, len(ids)+1)
		args = append(args, jobType)
		for _, id := range ids {
			args = append(args, id)
		}
		rows, err := t.db.QueryContext(ctx,
			`SELECT entity_id, status FROM job_status WHERE job_type = ? AND entity_id IN (`+sqlitedb.Placeholders(len(ids))+`)`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("load statuses: %w", err)
		}
		for rows.Next() {
			var (
				id     string
				status queue.Status
			)
			if err := rows.Scan(&id, &status); err != nil {
				rows.Close()
				return nil, err
			}
			result[id] = status
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return result, nil
}

// Pending filters entityIDs down to those whose jobType row is missing or not
// finished, preserving input order.
func (t *Tracker) Pending(ctx context.Context, jobType string, entityIDs []string) ([]string, error) {
	known, err := t.statuses(ctx, jobType, entityIDs)
	if err != nil {
		return nil, err
	}
	pending := make([]string, 0, len(entityIDs))
	seen := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if known[id] != queue.StatusFinished {
			pending = append(pending, id)
		}
	}
	return pending, nil
}

// Progress aggregates status rows of one job type across a set of entities.
type Progress struct {
	JobType string               `json:"job_type"`
	Total   int                  `json:"total"`
	Missing int                  `json:"missing"`
	Counts  map[queue.Status]int `json:"counts"`
}

// Finished is the number of entities whose row is FINISHED.
func (p Progress) Finished() int {
	return p.Counts[queue.StatusFinished]
}

func (p Progress) String() string {
	return fmt.Sprintf("%d of %d finished", p.Finished(), p.Total)
}

// Progress computes per-status counts for jobType over entityIDs.
func (t *Tracker) Progress(ctx context.Context, jobType string, entityIDs []string) (Progress, error) {
	known, err := t.statuses(ctx, jobType, entityIDs)
	if err != nil {
		return Progress{}, err
	}
	progress := Progress{JobType: jobType, Counts: make(map[queue.Status]int)}
	seen := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		progress.Total++
		status, ok := known[id]
		if !ok {
			progress.Missing++
			continue
		}
		progress.Counts[status]++
	}
	return progress, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec     Record
		message sql.NullString
		updated string
	)
	if err := scanner.Scan(&rec.EntityID, &rec.JobType, &rec.Status, &message, &updated); err != nil {
		return Record{}, err
	}
	rec.Message = message.String
	if ts, err := sqlitedb.ParseTime(updated); err == nil {
		rec.Timestamp = ts
	}
	return rec, nil
}
