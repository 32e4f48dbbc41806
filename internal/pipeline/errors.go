package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotFrozen is returned by Run and Validate on a pipeline still accepting steps.
var ErrNotFrozen = errors.New("pipeline is not frozen")

// FrozenError is returned when a step is registered after Freeze.
type FrozenError struct {
	Pipeline string
	Step     string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("pipeline %s is frozen: cannot register step %q", e.Pipeline, e.Step)
}

// MissingCargoDataError reports a RequiredData key absent from the cargo.
type MissingCargoDataError struct {
	Pipeline string
	Step     string
	Key      string
}

func (e *MissingCargoDataError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("cargo is missing %q", e.Key)
	}
	return fmt.Sprintf("pipeline %s: step %s requires cargo key %q", e.Pipeline, e.Step, e.Key)
}

// ErrorKind marks the failure as permanent.
func (e *MissingCargoDataError) ErrorKind() string { return "validation" }

// StepError wraps an error returned by a step.
type StepError struct {
	Pipeline string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline %s: step %s: %v", e.Pipeline, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StoppedError is returned when the context ends between steps. The cargo keeps
// the steps that already finished, so a later Run resumes with Next.
type StoppedError struct {
	Pipeline string
	Next     string
	Cause    error
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("pipeline %s stopped before step %s: %v", e.Pipeline, e.Next, e.Cause)
}

func (e *StoppedError) Unwrap() error { return e.Cause }
