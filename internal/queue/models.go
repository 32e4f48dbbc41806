package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusAborted  Status = "aborted"
)

var allStatuses = []Status{
	StatusWaiting,
	StatusRunning,
	StatusFinished,
	StatusError,
	StatusAborted,
}

// AllStatuses returns the lifecycle states in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusAborted
}

var transitions = map[Status][]Status{
	StatusWaiting: {StatusRunning, StatusAborted},
	// running -> waiting is only used when reclaiming jobs whose worker died.
	StatusRunning: {StatusFinished, StatusError, StatusAborted, StatusWaiting},
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Device names the worker lane a job is routed to.
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
	DeviceAPI Device = "api"
)

// Devices returns every lane in a stable order.
func Devices() []Device {
	return []Device{DeviceCPU, DeviceGPU, DeviceAPI}
}

// ParseDevice validates a device name; empty defaults to cpu.
func ParseDevice(value string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(value))) {
	case "", DeviceCPU:
		return DeviceCPU, nil
	case DeviceGPU:
		return DeviceGPU, nil
	case DeviceAPI:
		return DeviceAPI, nil
	default:
		return "", fmt.Errorf("unknown device %q", value)
	}
}

// Job is a single unit of work persisted in the jobs table.
type Job struct {
	ID               string
	Type             string
	Status           Status
	Device           Device
	Priority         int
	Input            json.RawMessage
	Output           json.RawMessage
	Timeout          time.Duration
	ResultTTL        time.Duration
	MaxRetries       int
	RetryCountdown   time.Duration
	RetryIncremental bool
	Attempts         int
	StatusMessage    string
	EntityID         string
	ParentID         string
	BranchIndex      *int
	AbortRequested   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	LastHeartbeat    *time.Time
}

// ExpiresAt reports when a terminal job becomes eligible for purge.
func (j *Job) ExpiresAt() *time.Time {
	if j == nil || j.FinishedAt == nil || j.ResultTTL <= 0 {
		return nil
	}
	at := j.FinishedAt.Add(j.ResultTTL)
	return &at
}

// RetryDelay returns the wait before the given retry (1-based).
func (j *Job) RetryDelay(retry int) time.Duration {
	if j.RetryCountdown <= 0 {
		return 0
	}
	if j.RetryIncremental && retry > 1 {
		return j.RetryCountdown * time.Duration(retry)
	}
	return j.RetryCountdown
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Statuses []Status
	Type     string
	ParentID string
	EntityID string
	Limit    int
}

// LaneStats counts jobs per status for one device.
type LaneStats struct {
	Device Device
	Counts map[Status]int
}

// Waiting is a convenience accessor.
func (l LaneStats) Waiting() int { return l.Counts[StatusWaiting] }

// Running is a convenience accessor.
func (l LaneStats) Running() int { return l.Counts[StatusRunning] }

// HealthSummary aggregates queue state for diagnostic output.
type HealthSummary struct {
	Total    int `json:"total"`
	Waiting  int `json:"waiting"`
	Running  int `json:"running"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
	Aborted  int `json:"aborted"`
}
