package services

import (
	"context"
	"errors"
)

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	jobTypeKey   contextKey = "job_type"
	stepKey      contextKey = "step"
	deviceKey    contextKey = "device"
	requestIDKey contextKey = "request_id"
	stopKey      contextKey = "stop"
)

// ErrStopRequested is the cause reported when work ends at a safe point
// because its stop signal fired.
var ErrStopRequested = errors.New("stop requested")

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobType annotates context with the registered job type.
func WithJobType(ctx context.Context, jobType string) context.Context {
	if jobType == "" {
		return ctx
	}
	return context.WithValue(ctx, jobTypeKey, jobType)
}

// JobTypeFromContext returns the job type if present.
func JobTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStep annotates context with the pipeline step name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the pipeline step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stepKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithDevice annotates context with the worker lane device (cpu/gpu/api).
func WithDevice(ctx context.Context, device string) context.Context {
	if device == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceKey, device)
}

// DeviceFromContext returns the worker lane device if present.
func DeviceFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(deviceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStopSignal attaches a channel that is closed when the job should stop
// at its next safe point. Unlike cancellation it does not interrupt work in
// progress.
func WithStopSignal(ctx context.Context, stop <-chan struct{}) context.Context {
	if stop == nil {
		return ctx
	}
	return context.WithValue(ctx, stopKey, stop)
}

// StopSignal returns the channel attached by WithStopSignal, or nil.
func StopSignal(ctx context.Context) <-chan struct{} {
	stop, _ := ctx.Value(stopKey).(<-chan struct{})
	return stop
}

// StopRequested reports whether the stop signal on ctx has fired.
func StopRequested(ctx context.Context) bool {
	stop := StopSignal(ctx)
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
