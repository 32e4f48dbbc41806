package events

import (
	"context"
	"encoding/json"
	"time"
)

// Signal names a class of events.
type Signal string

const (
	SignalJobFinished  Signal = "job_finished"
	SignalJobFailed    Signal = "job_failed"
	SignalJobAborted   Signal = "job_aborted"
	SignalEntityStatus Signal = "entity_status"
)

// Signals lists every known signal.
func Signals() []Signal {
	return []Signal{SignalJobFinished, SignalJobFailed, SignalJobAborted, SignalEntityStatus}
}

// Event is one published occurrence.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Signal    Signal          `json:"signal"`
	JobID     string          `json:"job_id,omitempty"`
	JobType   string          `json:"job_type,omitempty"`
	EntityID  string          `json:"entity_id,omitempty"`
	ParentID  string          `json:"parent_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Listener reacts to an event.
type Listener func(ctx context.Context, evt Event) error
