// Package branch turns a finished job's output into follow-up jobs.
//
// A Switch picks the follow-ups by a key computed from the output; a Loop
// submits one job per item the output yields. Operators are attached to the
// event bus and run when a job of their source type finishes.
package branch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/queue"
)

// Submitter enqueues follow-up jobs. *jobs.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, jobType string, input any, opts ...jobs.SubmitOption) (*queue.Job, error)
}

// Operator reacts to the completion of jobs of one source type.
type Operator interface {
	Name() string
	Source() string
	Follow(ctx context.Context, sub Submitter, finished events.Event) ([]*queue.Job, error)
}

func decodeOutput[O any](evt events.Event) (O, error) {
	var out O
	if len(evt.Output) == 0 {
		return out, fmt.Errorf("job %s finished without output", evt.JobID)
	}
	if err := json.Unmarshal(evt.Output, &out); err != nil {
		return out, fmt.Errorf("decode output of job %s: %w", evt.JobID, err)
	}
	return out, nil
}

type route[O any] struct {
	next       string
	transition func(O) (any, error)
}

// Switch routes a finished job to the follow-ups registered for its key.
type Switch[O any] struct {
	source string
	key    func(O) (string, error)
	cases  map[string][]route[O]
}

// NewSwitch builds a switch over the output of source jobs.
func NewSwitch[O any](source string, key func(O) (string, error)) *Switch[O] {
	return &Switch[O]{source: source, key: key, cases: make(map[string][]route[O])}
}

// On adds a follow-up of type next when the key equals value. transition
// builds its input from the parent output.
func (s *Switch[O]) On(value, next string, transition func(O) (any, error)) *Switch[O] {
	s.cases[value] = append(s.cases[value], route[O]{next: next, transition: transition})
	return s
}

func (s *Switch[O]) Name() string   { return "switch:" + s.source }
func (s *Switch[O]) Source() string { return s.source }

// Follow submits the follow-ups for the key of the finished output. Unmatched
// keys submit nothing.
func (s *Switch[O]) Follow(ctx context.Context, sub Submitter, finished events.Event) ([]*queue.Job, error) {
	out, err := decodeOutput[O](finished)
	if err != nil {
		return nil, err
	}
	value, err := s.key(out)
	if err != nil {
		return nil, fmt.Errorf("switch key: %w", err)
	}
	var (
		submitted []*queue.Job
		errs      []error
	)
	for _, r := range s.cases[value] {
		input, err := r.transition(out)
		if err != nil {
			errs = append(errs, fmt.Errorf("transition to %s: %w", r.next, err))
			continue
		}
		job, err := sub.Submit(ctx, r.next, input, jobs.WithParent(finished.JobID, -1))
		if err != nil {
			errs = append(errs, fmt.Errorf("submit %s: %w", r.next, err))
			continue
		}
		submitted = append(submitted, job)
	}
	return submitted, errors.Join(errs...)
}

// Loop fans a finished job out into one follow-up per item.
type Loop[O, T any] struct {
	source     string
	next       string
	items      func(O) ([]T, error)
	transition func(T, int) (any, error)
}

// NewLoop builds a loop over the items of source job outputs.
func NewLoop[O, T any](source, next string, items func(O) ([]T, error), transition func(T, int) (any, error)) *Loop[O, T] {
	return &Loop[O, T]{source: source, next: next, items: items, transition: transition}
}

func (l *Loop[O, T]) Name() string   { return "loop:" + l.source + "->" + l.next }
func (l *Loop[O, T]) Source() string { return l.source }

// Follow submits one job per item, recording the item index on each.
func (l *Loop[O, T]) Follow(ctx context.Context, sub Submitter, finished events.Event) ([]*queue.Job, error) {
	out, err := decodeOutput[O](finished)
	if err != nil {
		return nil, err
	}
	items, err := l.items(out)
	if err != nil {
		return nil, fmt.Errorf("loop items: %w", err)
	}
	var (
		submitted []*queue.Job
		errs      []error
	)
	for i, item := range items {
		input, err := l.transition(item, i)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		job, err := sub.Submit(ctx, l.next, input, jobs.WithParent(finished.JobID, i))
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: submit %s: %w", i, l.next, err))
			continue
		}
		submitted = append(submitted, job)
	}
	return submitted, errors.Join(errs...)
}

// Attach subscribes every operator to job_finished events of its source
// type. The returned func detaches them all.
func Attach(bus *events.Bus, sub Submitter, logger *slog.Logger, ops ...Operator) func() {
	logger = logging.NewComponentLogger(logger, "branch")
	unsubscribe := make([]func(), 0, len(ops))
	for _, op := range ops {
		op := op
		unsubscribe = append(unsubscribe, bus.Subscribe(events.SignalJobFinished, op.Name(), func(ctx context.Context, evt events.Event) error {
			if evt.JobType != op.Source() {
				return nil
			}
			submitted, err := op.Follow(ctx, sub, evt)
			if err != nil {
				logging.WarnWithContext(logger, "branch operator failed", "branch_failed",
					logging.String("operator", op.Name()),
					logging.String(logging.FieldJobID, evt.JobID),
					logging.Int("submitted", len(submitted)),
					logging.String(logging.FieldErrorHint, "parent job result is unaffected; resubmit follow-ups manually"),
					logging.Error(err),
				)
				return nil
			}
			if len(submitted) > 0 {
				logger.Info("branch submitted follow-up jobs",
					logging.String(logging.FieldEventType, "branch_submitted"),
					logging.String("operator", op.Name()),
					logging.String(logging.FieldJobID, evt.JobID),
					logging.Int("submitted", len(submitted)),
				)
			}
			return nil
		}))
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}
