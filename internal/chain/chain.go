package chain

import (
	"fmt"
	"slices"
	"sort"

	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Node is one position in a chain. A chain owns its nodes; Predecessor is nil
// for the first node.
type Node struct {
	Descriptor  Descriptor
	Index       int
	Predecessor *Node
}

// ComputedInput returns the input this node runs with, given its
// predecessor's output. Explicit input wins on key collision. The first node
// ignores predOutput and uses its explicit input alone.
func (n *Node) ComputedInput(predOutput work.Data) work.Data {
	if n.Predecessor == nil {
		return n.Descriptor.Input()
	}
	return work.Merge(predOutput, n.Descriptor.Input())
}

// Chain is an ordered, linear sequence of nodes.
type Chain struct {
	nodes []*Node
}

// Build links descriptors into a chain. It fails with ErrEmptyChain when no
// descriptors are given and with a validation error for a descriptor without
// a type or with unsupported input.
func Build(descriptors ...Descriptor) (*Chain, error) {
	if len(descriptors) == 0 {
		return nil, errors.ErrEmptyChain
	}

	c := &Chain{nodes: make([]*Node, 0, len(descriptors))}
	var prev *Node
	for i, d := range descriptors {
		if d.TypeID() == "" {
			return nil, errors.NewValidationError("descriptor has no type").
				WithField(fmt.Sprintf("tasks[%d].type", i)).
				WithCause(errors.ErrInvalidChain)
		}
		if err := d.Input().Validate(); err != nil {
			return nil, errors.Wrapf(err, "tasks[%d].input", i)
		}
		n := &Node{Descriptor: d, Index: i, Predecessor: prev}
		c.nodes = append(c.nodes, n)
		prev = n
	}
	return c, nil
}

// Len returns the number of nodes. A nil chain has length zero.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.nodes)
}

// Nodes returns the nodes in execution order.
func (c *Chain) Nodes() []*Node {
	if c == nil {
		return nil
	}
	return slices.Clone(c.nodes)
}

// Descriptors returns the descriptors in execution order.
func (c *Chain) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, c.Len())
	for _, n := range c.Nodes() {
		out = append(out, n.Descriptor)
	}
	return out
}

// Tags returns the sorted union of every node's tags.
func (c *Chain) Tags() []string {
	seen := make(map[string]struct{})
	for _, n := range c.Nodes() {
		for _, t := range n.Descriptor.Tags() {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Builder accumulates descriptors in the begin/then continuation style.
type Builder struct {
	descriptors []Descriptor
}

// Begin starts a builder with the given first descriptors.
func Begin(first ...Descriptor) *Builder {
	return &Builder{descriptors: slices.Clone(first)}
}

// Then appends descriptors after everything added so far.
func (b *Builder) Then(next ...Descriptor) *Builder {
	b.descriptors = append(b.descriptors, next...)
	return b
}

// Build calls Build with the accumulated descriptors.
func (b *Builder) Build() (*Chain, error) {
	return Build(b.descriptors...)
}
