package work

import (
	"slices"
	"time"
)

// State is the lifecycle state of a TaskRun.
type State string

const (
	// StateBlocked means the TaskRun waits for its predecessor to succeed.
	StateBlocked State = "BLOCKED"

	// StateEnqueued means the TaskRun is eligible and waits for a worker.
	StateEnqueued State = "ENQUEUED"

	// StateRunning means a worker is executing the task body.
	StateRunning State = "RUNNING"

	// StateSucceeded means the body reported success; Output is set.
	StateSucceeded State = "SUCCEEDED"

	// StateFailed means the body reported failure on its last attempt.
	StateFailed State = "FAILED"

	// StateCancelled means the TaskRun was cancelled, either directly or
	// because an upstream TaskRun did not succeed.
	StateCancelled State = "CANCELLED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if this state is final.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether from -> to is a legal state change.
// States only move forward: BLOCKED -> ENQUEUED -> RUNNING -> terminal,
// and any non-terminal state may be cancelled.
func CanTransition(from, to State) bool {
	switch from {
	case StateBlocked:
		return to == StateEnqueued || to == StateCancelled
	case StateEnqueued:
		return to == StateRunning || to == StateCancelled
	case StateRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// UnsetRetries is the MaxRetries value of a TaskRun whose descriptor did not
// set a retry budget.
const UnsetRetries = -1

// TaskRun is one runtime instantiation of a descriptor. Values handed out by
// the scheduler are snapshots; mutating them has no effect.
type TaskRun struct {
	// ID is unique per instantiation.
	ID string `json:"id"`

	// ChainName is the unique name of the owning chain.
	ChainName string `json:"chain_name"`

	// RunID identifies the chain run this TaskRun belongs to.
	RunID string `json:"run_id"`

	// Index is the position within the chain run, counting appended nodes.
	Index int `json:"index"`

	// TypeID selects the worker.
	TypeID string `json:"type"`

	State State `json:"state"`

	// Input is the computed input, set when the TaskRun starts running.
	Input Data `json:"input,omitempty"`

	// Output is present only when State is SUCCEEDED.
	Output Data `json:"output,omitempty"`

	Tags []string `json:"tags,omitempty"`

	// Attempts counts executions of the body, including retries.
	Attempts int `json:"attempts"`

	// MaxRetries is the retry budget from the descriptor, or UnsetRetries
	// when the scheduler's default budget applies.
	MaxRetries int `json:"max_retries"`

	// Error holds the last failure message.
	Error string `json:"error,omitempty"`

	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// HasTag reports whether the TaskRun carries tag.
func (t TaskRun) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Clone returns a deep copy of the mutable fields.
func (t TaskRun) Clone() TaskRun {
	cp := t
	if t.Input != nil {
		cp.Input = t.Input.Clone()
	}
	if t.Output != nil {
		cp.Output = t.Output.Clone()
	}
	cp.Tags = slices.Clone(t.Tags)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		cp.FinishedAt = &ts
	}
	return cp
}
