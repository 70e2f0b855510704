package chain

import (
	"slices"

	"github.com/Iron-Ham/workchain/internal/work"
)

// Descriptor is the immutable specification of one task. Every With* and
// Add* method returns a modified copy and leaves the receiver untouched.
type Descriptor struct {
	typeID     string
	input      work.Data
	tags       []string
	maxRetries int
	hasRetries bool
}

// NewDescriptor creates a descriptor for the worker registered as typeID.
func NewDescriptor(typeID string) Descriptor {
	return Descriptor{typeID: typeID}
}

// WithInput returns a copy whose explicit input is data.
func (d Descriptor) WithInput(data work.Data) Descriptor {
	d.input = data.Clone()
	return d
}

// AddTag returns a copy carrying the additional tags. Duplicates are ignored.
func (d Descriptor) AddTag(tags ...string) Descriptor {
	out := slices.Clone(d.tags)
	for _, t := range tags {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	d.tags = out
	return d
}

// WithMaxRetries returns a copy allowing n retries after a failed attempt.
func (d Descriptor) WithMaxRetries(n int) Descriptor {
	if n < 0 {
		n = 0
	}
	d.maxRetries = n
	d.hasRetries = true
	return d
}

// TypeID returns the worker type.
func (d Descriptor) TypeID() string { return d.typeID }

// Input returns a copy of the explicit input. Never nil.
func (d Descriptor) Input() work.Data { return d.input.Clone() }

// HasInput reports whether explicit input was set.
func (d Descriptor) HasInput() bool { return len(d.input) > 0 }

// Tags returns a copy of the descriptor's tags.
func (d Descriptor) Tags() []string { return slices.Clone(d.tags) }

// MaxRetries returns the retry budget, or work.UnsetRetries when
// WithMaxRetries was never called and the scheduler default applies.
func (d Descriptor) MaxRetries() int {
	if !d.hasRetries {
		return work.UnsetRetries
	}
	return d.maxRetries
}
