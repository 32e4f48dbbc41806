package jobs

import "fmt"

// UnsupportedJobTypeError is returned for types missing from the registry.
type UnsupportedJobTypeError struct {
	Type string
}

func (e *UnsupportedJobTypeError) Error() string {
	return fmt.Sprintf("unsupported job type %q", e.Type)
}

// ErrorKind marks the failure as permanent.
func (e *UnsupportedJobTypeError) ErrorKind() string { return "not_found" }

// ValidationError reports input or output that does not match a job type's
// contract.
type ValidationError struct {
	Type  string
	Field string // "input" or "output"
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s for job type %s: %v", e.Field, e.Type, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrorKind marks the failure as permanent.
func (e *ValidationError) ErrorKind() string { return "validation" }
