package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change is not an edge of
	// the state machine or the job moved on concurrently.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// TransitionError reports a refused status change.
type TransitionError struct {
	JobID   string
	Current Status
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	if e.From != "" && e.From != e.Current {
		return fmt.Sprintf("job %s: expected status %s, found %s (wanted %s)", e.JobID, e.From, e.Current, e.To)
	}
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.Current, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ErrorKind marks refused transitions as validation failures.
func (e *TransitionError) ErrorKind() string { return "validation" }
