package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"docflow/internal/logging"
	"docflow/internal/services"
)

// StepFunc mutates and returns the cargo it is given.
type StepFunc func(ctx context.Context, cargo *Cargo) (*Cargo, error)

// Step is one named transformation.
type Step struct {
	Name         string
	Ordering     int
	RequiredData []string
	// Provides lists the keys the step writes; Validate uses it to check the
	// data flow of a built pipeline.
	Provides []string
	Run      StepFunc
}

// Pipeline is an ordered list of steps that becomes immutable after Freeze.
type Pipeline struct {
	name   string
	mu     sync.RWMutex
	steps  []Step
	index  map[string]int
	frozen bool
	logger *slog.Logger
}

// New creates an empty pipeline.
func New(name string) *Pipeline {
	return &Pipeline{name: name, index: make(map[string]int)}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// SetLogger attaches a logger used for step tracing. Nil disables logging.
func (p *Pipeline) SetLogger(logger *slog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// RegisterStep appends step. It fails once the pipeline is frozen.
func (p *Pipeline) RegisterStep(step Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return &FrozenError{Pipeline: p.name, Step: step.Name}
	}
	name := strings.TrimSpace(step.Name)
	if name == "" {
		return errors.New("step name is required")
	}
	if step.Run == nil {
		return fmt.Errorf("step %s: run func is required", name)
	}
	if _, exists := p.index[name]; exists {
		return fmt.Errorf("step %s already registered in pipeline %s", name, p.name)
	}
	step.Name = name
	p.index[name] = len(p.steps)
	p.steps = append(p.steps, step)
	return nil
}

// MustRegisterStep panics on registration errors. Use for statically known steps.
func (p *Pipeline) MustRegisterStep(step Step) {
	if err := p.RegisterStep(step); err != nil {
		panic(err)
	}
}

// Freeze sorts the steps by Ordering (stable for ties) and closes registration.
// Calling it again is a no-op.
func (p *Pipeline) Freeze() *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return p
	}
	slices.SortStableFunc(p.steps, func(a, b Step) int {
		return cmp.Compare(a.Ordering, b.Ordering)
	})
	for i, step := range p.steps {
		p.index[step.Name] = i
	}
	p.frozen = true
	return p
}

// Frozen reports whether Freeze was called.
func (p *Pipeline) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name
	}
	return names
}

// Validate checks that every RequiredData key is either among initialKeys or
// provided by an earlier step.
func (p *Pipeline) Validate(initialKeys ...string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.frozen {
		return ErrNotFrozen
	}
	available := make(map[string]struct{}, len(initialKeys))
	for _, key := range initialKeys {
		available[key] = struct{}{}
	}
	for _, step := range p.steps {
		for _, key := range step.RequiredData {
			if _, ok := available[key]; !ok {
				return &MissingCargoDataError{Pipeline: p.name, Step: step.Name, Key: key}
			}
		}
		for _, key := range step.Provides {
			available[key] = struct{}{}
		}
	}
	return nil
}

// Run executes the steps named by cargo.NextSteps in order. An empty plan is
// initialised with every step; a non-empty plan resumes a previous run.
func (p *Pipeline) Run(ctx context.Context, cargo *Cargo) (*Cargo, error) {
	p.mu.RLock()
	frozen := p.frozen
	logger := p.logger
	p.mu.RUnlock()
	if !frozen {
		return cargo, ErrNotFrozen
	}
	if cargo == nil {
		return nil, errors.New("cargo is required")
	}
	if cargo.Data == nil {
		cargo.Data = make(map[string]any)
	}
	if len(cargo.NextSteps) == 0 && len(cargo.FinishedSteps) == 0 {
		cargo.NextSteps = p.StepNames()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	for len(cargo.NextSteps) > 0 {
		name := cargo.NextSteps[0]
		if err := ctx.Err(); err != nil {
			return cargo, &StoppedError{Pipeline: p.name, Next: name, Cause: context.Cause(ctx)}
		}
		if services.StopRequested(ctx) {
			return cargo, &StoppedError{Pipeline: p.name, Next: name, Cause: services.ErrStopRequested}
		}
		idx, ok := p.index[name]
		if !ok {
			return cargo, fmt.Errorf("pipeline %s: unknown step %q in cargo plan", p.name, name)
		}
		step := p.steps[idx]
		for _, key := range step.RequiredData {
			if !cargo.Has(key) {
				return cargo, &MissingCargoDataError{Pipeline: p.name, Step: step.Name, Key: key}
			}
		}

		stepCtx := services.WithStep(ctx, step.Name)
		stepLogger := logging.WithContext(stepCtx, logger)
		start := time.Now()
		stepLogger.Debug("pipeline step started", logging.String("pipeline", p.name))

		out, err := step.Run(stepCtx, cargo)
		if err != nil {
			return cargo, &StepError{Pipeline: p.name, Step: step.Name, Err: err}
		}
		if out != nil && out != cargo {
			cargo.Data = out.Data
		}
		cargo.NextSteps = cargo.NextSteps[1:]
		cargo.FinishedSteps = append(cargo.FinishedSteps, step.Name)
		stepLogger.Debug("pipeline step finished",
			logging.String("pipeline", p.name),
			logging.Duration("duration", time.Since(start)),
		)
	}
	return cargo, nil
}
