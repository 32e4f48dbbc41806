package api

import (
	"encoding/json"
	"time"

	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/preflight"
	"docflow/internal/queue"
	"docflow/internal/tracker"
	"docflow/internal/worker"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Device        string          `json:"device"`
	Priority      int             `json:"priority"`
	Attempts      int             `json:"attempts"`
	MaxRetries    int             `json:"maxRetries"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	EntityID      string          `json:"entityId,omitempty"`
	ParentID      string          `json:"parentId,omitempty"`
	BranchIndex   *int            `json:"branchIndex,omitempty"`
	Abort         bool            `json:"abortRequested,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	StartedAt     string          `json:"startedAt,omitempty"`
	FinishedAt    string          `json:"finishedAt,omitempty"`
	ExpiresAt     string          `json:"expiresAt,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobType describes one registered job type.
type JobType struct {
	Type        string `json:"type"`
	Device      string `json:"device"`
	Priority    int    `json:"priority"`
	Timeout     string `json:"timeout,omitempty"`
	ResultTTL   string `json:"resultTtl,omitempty"`
	MaxRetries  int    `json:"maxRetries"`
	Router      bool   `json:"router"`
	Description string `json:"description,omitempty"`
}

// TypesResponse lists registered job types.
type TypesResponse struct {
	Types []JobType `json:"types"`
}

// TrackerResponse wraps a status row.
type TrackerResponse struct {
	Record tracker.Record `json:"record"`
}

// EventsResponse returns bus history after a sequence number.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// DaemonStatus aggregates runtime information.
type DaemonStatus struct {
	Running      bool                 `json:"running"`
	PID          int                  `json:"pid"`
	DatabasePath string               `json:"databasePath"`
	LockFilePath string               `json:"lockFilePath"`
	APIAddress   string               `json:"apiAddress,omitempty"`
	Workers      worker.StatusSummary `json:"workers"`
	Preflight    []preflight.Result   `json:"preflight,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromJob converts a queue job into its wire form.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	out := Job{
		ID:            job.ID,
		Type:          job.Type,
		Status:        string(job.Status),
		Device:        string(job.Device),
		Priority:      job.Priority,
		Attempts:      job.Attempts,
		MaxRetries:    job.MaxRetries,
		StatusMessage: job.StatusMessage,
		EntityID:      job.EntityID,
		ParentID:      job.ParentID,
		BranchIndex:   job.BranchIndex,
		Abort:         job.AbortRequested,
		Input:         job.Input,
		Output:        job.Output,
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
		StartedAt:     formatTimePtr(job.StartedAt),
		FinishedAt:    formatTimePtr(job.FinishedAt),
		ExpiresAt:     formatTimePtr(job.ExpiresAt()),
	}
	return out
}

// FromJobs converts a slice, never returning nil.
func FromJobs(list []*queue.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromDescriptor converts a registry entry.
func FromDescriptor(desc *jobs.Descriptor) JobType {
	return JobType{
		Type:        desc.Type,
		Device:      string(desc.Options.Device),
		Priority:    desc.Options.Priority,
		Timeout:     formatDuration(desc.Options.Timeout),
		ResultTTL:   formatDuration(desc.Options.ResultTTL),
		MaxRetries:  desc.Options.Retry.MaxRetries,
		Router:      desc.Options.Router,
		Description: desc.Options.Description,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}
