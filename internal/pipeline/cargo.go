package pipeline

import "fmt"

// Cargo is the data bag owned by one pipeline execution.
type Cargo struct {
	EntityRef     string         `json:"entity_ref"`
	Data          map[string]any `json:"data"`
	NextSteps     []string       `json:"next_steps"`
	FinishedSteps []string       `json:"finished_steps"`
}

// NewCargo creates an empty cargo for entityRef seeded with data.
func NewCargo(entityRef string, data map[string]any) *Cargo {
	cargo := &Cargo{EntityRef: entityRef, Data: make(map[string]any, len(data))}
	for k, v := range data {
		cargo.Data[k] = v
	}
	return cargo
}

// Set stores value under key.
func (c *Cargo) Set(key string, value any) {
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	c.Data[key] = value
}

// Get returns the raw value for key.
func (c *Cargo) Get(key string) (any, bool) {
	value, ok := c.Data[key]
	return value, ok
}

// Has reports whether key is present.
func (c *Cargo) Has(key string) bool {
	_, ok := c.Data[key]
	return ok
}

// Finished reports whether the named step already ran on this cargo.
func (c *Cargo) Finished(step string) bool {
	for _, name := range c.FinishedSteps {
		if name == step {
			return true
		}
	}
	return false
}

// Value returns the cargo value for key typed as T.
func Value[T any](c *Cargo, key string) (T, error) {
	var zero T
	raw, ok := c.Data[key]
	if !ok {
		return zero, &MissingCargoDataError{Key: key}
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("cargo key %q holds %T, want %T", key, raw, zero)
	}
	return typed, nil
}
