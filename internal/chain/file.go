package chain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Definition is the on-disk form of a named chain.
type Definition struct {
	// Name is the unique name the chain is submitted under.
	Name string `yaml:"name"`
	// Policy is optional; empty means the caller's default.
	Policy string `yaml:"policy,omitempty"`
	// Tasks run in the order listed.
	Tasks []TaskDefinition `yaml:"tasks"`
}

// TaskDefinition is the on-disk form of a Descriptor.
type TaskDefinition struct {
	Type       string         `yaml:"type"`
	Input      map[string]any `yaml:"input,omitempty"`
	Tags       []string       `yaml:"tags,omitempty"`
	MaxRetries *int           `yaml:"max_retries,omitempty"`
}

// LoadFile reads and parses a chain definition from a YAML file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML chain definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse chain file: %w", err)
	}
	if def.Name == "" {
		return nil, errors.NewValidationError("chain name is required").WithField("name")
	}
	return &def, nil
}

// PolicyOr returns the definition's policy, or def when none is set.
func (d *Definition) PolicyOr(def Policy) (Policy, error) {
	if d.Policy == "" {
		return def, nil
	}
	return ParsePolicy(d.Policy)
}

// Descriptors converts the task definitions into descriptors.
func (d *Definition) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		desc := NewDescriptor(t.Type).AddTag(t.Tags...)
		if t.MaxRetries != nil {
			desc = desc.WithMaxRetries(*t.MaxRetries)
		}
		if len(t.Input) > 0 {
			desc = desc.WithInput(normalizeInput(t.Input))
		}
		out = append(out, desc)
	}
	return out
}

// Chain builds the chain described by the definition.
func (d *Definition) Chain() (*Chain, error) {
	return Build(d.Descriptors()...)
}

// normalizeInput converts YAML sequences into typed slices so they pass
// work.Data validation. Mixed sequences are left as-is and rejected later.
func normalizeInput(in map[string]any) work.Data {
	out := make(work.Data, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	if strs, ok := convertAll[string](list); ok {
		return strs
	}
	if ints, ok := convertAll[int](list); ok {
		return ints
	}
	if floats, ok := convertAll[float64](list); ok {
		return floats
	}
	if bools, ok := convertAll[bool](list); ok {
		return bools
	}
	return v
}

func convertAll[T any](list []any) ([]T, bool) {
	out := make([]T, 0, len(list))
	for _, item := range list {
		t, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}
