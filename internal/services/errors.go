package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ErrorKind values that mark a failure as permanent.
const (
	KindValidation    = "validation"
	KindConfiguration = "configuration"
	KindNotFound      = "not_found"
	KindTimeout       = "timeout"
	KindExternal      = "external_tool"
	KindTransient     = "transient"
)

// ErrorClassifier allows errors to declare their classification without
// wrapping one of the sentinel markers.
type ErrorClassifier interface {
	ErrorKind() string
}

// ErrorDetails is the structured view of a wrapped failure used for logging
// and for status messages persisted on jobs.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Cause     error
}

// wrappedError keeps the pieces passed to Wrap so Details can recover them.
type wrappedError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &wrappedError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts structured information from err. Errors that did not go
// through Wrap report their full text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		message := wrapped.message
		if message == "" && wrapped.cause != nil {
			message = wrapped.cause.Error()
		}
		return ErrorDetails{
			Kind:      Kind(err),
			Component: wrapped.component,
			Operation: wrapped.operation,
			Message:   message,
			Cause:     wrapped.cause,
		}
	}
	return ErrorDetails{Kind: Kind(err), Message: err.Error()}
}

// Kind resolves the classification of err from sentinel markers or an
// ErrorClassifier implementation.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrExternalTool):
		return KindExternal
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if kind := strings.TrimSpace(classifier.ErrorKind()); kind != "" {
			return kind
		}
	}
	return KindTransient
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	switch Kind(err) {
	case KindValidation, KindConfiguration, KindNotFound:
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
