package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var errSignedOption = errors.New("durations and retry counts must not be negative")

// Validator is implemented by inputs and outputs that check themselves.
type Validator interface {
	Validate() error
}

// EntityIdentifier is implemented by inputs that name the entity a job works on.
type EntityIdentifier interface {
	EntityID() string
}

// HandlerFunc runs one attempt of a job.
type HandlerFunc[I, O any] func(ctx context.Context, h *Handle, in I) (O, error)

// Definition is the typed registration of a job type.
type Definition[I, O any] struct {
	Type    string
	Options Options
	Handler HandlerFunc[I, O]
}

// Descriptor is the type-erased form of a Definition held by the registry.
type Descriptor struct {
	Type    string
	Options Options

	decode func(raw json.RawMessage) (string, error)
	invoke func(ctx context.Context, h *Handle, raw json.RawMessage) (json.RawMessage, error)
}

// Decode validates raw input and returns the entity ID it names, if any.
func (d *Descriptor) Decode(raw json.RawMessage) (string, error) {
	return d.decode(raw)
}

// Invoke decodes raw input, runs the handler and encodes its output.
func (d *Descriptor) Invoke(ctx context.Context, h *Handle, raw json.RawMessage) (json.RawMessage, error) {
	return d.invoke(ctx, h, raw)
}

// Registry maps job type names to descriptors.
type Registry struct {
	defaultTTL time.Duration

	mu    sync.RWMutex
	types map[string]*Descriptor
}

// NewRegistry returns an empty registry. defaultTTL applies to types that do
// not set ResultTTL.
func NewRegistry(defaultTTL time.Duration) *Registry {
	return &Registry{defaultTTL: defaultTTL, types: make(map[string]*Descriptor)}
}

// Register adds def to reg.
func Register[I, O any](reg *Registry, def Definition[I, O]) error {
	name := strings.TrimSpace(def.Type)
	if name == "" {
		return errors.New("register job type: name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("register job type %s: handler is required", name)
	}
	opts, err := def.Options.normalized(reg.defaultTTL)
	if err != nil {
		return fmt.Errorf("register job type %s: %w", name, err)
	}

	decode := func(raw json.RawMessage) (I, string, error) {
		var in I
		if len(bytes.TrimSpace(raw)) == 0 {
			raw = json.RawMessage("null")
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return in, "", &ValidationError{Type: name, Field: "input", Err: err}
		}
		if dec.More() {
			return in, "", &ValidationError{Type: name, Field: "input", Err: errors.New("trailing data after input")}
		}
		if v, ok := any(in).(Validator); ok {
			if err := v.Validate(); err != nil {
				return in, "", &ValidationError{Type: name, Field: "input", Err: err}
			}
		}
		entityID := ""
		if e, ok := any(in).(EntityIdentifier); ok {
			entityID = strings.TrimSpace(e.EntityID())
		}
		return in, entityID, nil
	}

	desc := &Descriptor{
		Type:    name,
		Options: opts,
		decode: func(raw json.RawMessage) (string, error) {
			_, entityID, err := decode(raw)
			return entityID, err
		},
		invoke: func(ctx context.Context, h *Handle, raw json.RawMessage) (json.RawMessage, error) {
			in, _, err := decode(raw)
			if err != nil {
				return nil, err
			}
			out, err := def.Handler(ctx, h, in)
			if err != nil {
				return nil, err
			}
			if v, ok := any(out).(Validator); ok {
				if err := v.Validate(); err != nil {
					return nil, &ValidationError{Type: name, Field: "output", Err: err}
				}
			}
			encoded, err := json.Marshal(out)
			if err != nil {
				return nil, &ValidationError{Type: name, Field: "output", Err: err}
			}
			return encoded, nil
		},
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.types[name]; exists {
		return fmt.Errorf("register job type %s: already registered", name)
	}
	reg.types[name] = desc
	return nil
}

// MustRegister is Register for process start-up; it panics on error.
func MustRegister[I, O any](reg *Registry, def Definition[I, O]) {
	if err := Register(reg, def); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for jobType.
func (r *Registry) Lookup(jobType string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.types[strings.TrimSpace(jobType)]
	if !ok {
		return nil, &UnsupportedJobTypeError{Type: jobType}
	}
	return desc, nil
}

// Types lists every descriptor sorted by name.
func (r *Registry) Types() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.types))
	for _, desc := range r.types {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
