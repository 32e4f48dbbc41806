package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docflow/internal/events"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/tracker"
)

// Service validates and enqueues jobs and exposes their records.
type Service struct {
	registry *Registry
	store    *queue.Store
	tracker  *tracker.Tracker
	bus      *events.Bus
	logger   *slog.Logger
}

// ServiceDeps wires a Service. Tracker and Bus are optional.
type ServiceDeps struct {
	Registry *Registry
	Store    *queue.Store
	Tracker  *tracker.Tracker
	Bus      *events.Bus
	Logger   *slog.Logger
}

// NewService validates deps and returns a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Registry == nil {
		return nil, errors.New("jobs service: registry is required")
	}
	if deps.Store == nil {
		return nil, errors.New("jobs service: queue store is required")
	}
	return &Service{
		registry: deps.Registry,
		store:    deps.Store,
		tracker:  deps.Tracker,
		bus:      deps.Bus,
		logger:   logging.NewComponentLogger(deps.Logger, "jobs"),
	}, nil
}

// Registry exposes the registry the service validates against.
func (s *Service) Registry() *Registry { return s.registry }

// SubmitOption adjusts a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	parentID    string
	branchIndex *int
	priority    *int
	entityID    string
}

// WithParent marks the job as spawned by parentID, at index for loop fan-out.
// A negative index records no position.
func WithParent(parentID string, index int) SubmitOption {
	return func(o *submitOptions) {
		o.parentID = parentID
		if index >= 0 {
			i := index
			o.branchIndex = &i
		}
	}
}

// WithPriority overrides the type's default priority.
func WithPriority(priority int) SubmitOption {
	return func(o *submitOptions) {
		p := priority
		o.priority = &p
	}
}

// WithEntityID sets the entity explicitly when the input does not name one.
func WithEntityID(entityID string) SubmitOption {
	return func(o *submitOptions) {
		o.entityID = entityID
	}
}

// Submit encodes input as JSON and enqueues it.
func (s *Service) Submit(ctx context.Context, jobType string, input any, opts ...SubmitOption) (*queue.Job, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, &ValidationError{Type: jobType, Field: "input", Err: err}
	}
	return s.SubmitRaw(ctx, jobType, raw, opts...)
}

// SubmitRaw validates raw against the registered input type and inserts a
// WAITING job carrying the type's execution options.
func (s *Service) SubmitRaw(ctx context.Context, jobType string, raw json.RawMessage, opts ...SubmitOption) (*queue.Job, error) {
	desc, err := s.registry.Lookup(jobType)
	if err != nil {
		return nil, err
	}
	entityID, err := desc.Decode(raw)
	if err != nil {
		return nil, err
	}

	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}
	if entityID == "" {
		entityID = so.entityID
	}
	priority := desc.Options.Priority
	if so.priority != nil {
		priority = *so.priority
	}

	job := &queue.Job{
		Type:             desc.Type,
		Device:           desc.Options.Device,
		Priority:         priority,
		Input:            raw,
		Timeout:          desc.Options.Timeout,
		ResultTTL:        desc.Options.ResultTTL,
		MaxRetries:       desc.Options.Retry.MaxRetries,
		RetryCountdown:   desc.Options.Retry.Countdown,
		RetryIncremental: desc.Options.Retry.Incremental,
		EntityID:         entityID,
		ParentID:         so.parentID,
		BranchIndex:      so.branchIndex,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("submit %s: %w", desc.Type, err)
	}
	s.logger.Debug("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, job.Type),
		logging.String(logging.FieldDevice, string(job.Device)),
		logging.String(logging.FieldEntityID, job.EntityID),
	)
	return job, nil
}

// Get returns the job with id.
func (s *Service) Get(ctx context.Context, id string) (*queue.Job, error) {
	return s.store.GetByID(ctx, id)
}

// List returns jobs matching filter, newest first.
func (s *Service) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error) {
	return s.store.List(ctx, filter)
}

// Abort cancels a WAITING job immediately or asks the worker running it to
// stop. Terminal jobs yield a *queue.TransitionError.
func (s *Service) Abort(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.store.RequestAbort(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != queue.StatusAborted {
		s.logger.Info("abort requested for running job",
			logging.String(logging.FieldEventType, "job_abort_requested"),
			logging.String(logging.FieldJobID, job.ID),
		)
		return job, nil
	}

	// The worker never saw this job, so the terminal bookkeeping happens here.
	if s.tracker != nil {
		if _, err := s.tracker.Upsert(ctx, tracker.Record{
			EntityID: job.EntityID,
			JobType:  job.Type,
			Status:   queue.StatusAborted,
			Message:  job.StatusMessage,
		}); err != nil {
			s.logger.Warn("failed to record aborted status",
				logging.String(logging.FieldEventType, "tracker_write_failed"),
				logging.String(logging.FieldErrorHint, "tracker row may be stale"),
				logging.Error(err),
			)
		}
	}
	s.bus.Publish(ctx, events.Event{
		Signal:   events.SignalJobAborted,
		JobID:    job.ID,
		JobType:  job.Type,
		EntityID: job.EntityID,
		ParentID: job.ParentID,
		Status:   string(job.Status),
		Message:  job.StatusMessage,
	})
	return job, nil
}
