package queue

import (
	"database/sql"
	"encoding/json"
	"time"

	"docflow/internal/sqlitedb"
)

const jobColumns = "id, job_type, status, device, priority, input_json, output_json, timeout_ms, result_ttl_ms, max_retries, retry_countdown_ms, retry_incremental, attempts, status_message, entity_id, parent_id, branch_index, abort_requested, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		jobType          string
		statusStr        string
		device           string
		priority         int
		input            string
		output           sql.NullString
		timeoutMS        int64
		resultTTLMS      int64
		maxRetries       int
		countdownMS      int64
		incremental      int
		attempts         int
		message          sql.NullString
		entityID         string
		parentID         sql.NullString
		branchIndex      sql.NullInt64
		abortRequested   int
		createdRaw       string
		updatedRaw       string
		startedRaw       sql.NullString
		finishedRaw      sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&statusStr,
		&device,
		&priority,
		&input,
		&output,
		&timeoutMS,
		&resultTTLMS,
		&maxRetries,
		&countdownMS,
		&incremental,
		&attempts,
		&message,
		&entityID,
		&parentID,
		&branchIndex,
		&abortRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Type:             jobType,
		Status:           Status(statusStr),
		Device:           Device(device),
		Priority:         priority,
		Input:            json.RawMessage(input),
		Timeout:          millis(timeoutMS),
		ResultTTL:        millis(resultTTLMS),
		MaxRetries:       maxRetries,
		RetryCountdown:   millis(countdownMS),
		RetryIncremental: incremental != 0,
		Attempts:         attempts,
		StatusMessage:    message.String,
		EntityID:         entityID,
		ParentID:         parentID.String,
		AbortRequested:   abortRequested != 0,
		StartedAt:        sqlitedb.ParseTimePtr(startedRaw.String),
		FinishedAt:       sqlitedb.ParseTimePtr(finishedRaw.String),
		LastHeartbeat:    sqlitedb.ParseTimePtr(lastHeartbeatRaw.String),
	}
	if output.Valid && output.String != "" {
		job.Output = json.RawMessage(output.String)
	}
	if branchIndex.Valid {
		idx := int(branchIndex.Int64)
		job.BranchIndex = &idx
	}
	if created, err := sqlitedb.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := sqlitedb.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func millis(value int64) time.Duration {
	return time.Duration(value) * time.Millisecond
}

func toMillis(value time.Duration) int64 {
	if value <= 0 {
		return 0
	}
	return value.Milliseconds()
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func nullableIndex(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
