package taskqueue

import (
	"errors"

	"github.com/Iron-Ham/workchain/internal/work"
)

// Sentinel errors returned by queue operations.
var (
	ErrTaskNotFound      = errors.New("task run not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Outcome summarises how a chain run ended.
type Outcome string

const (
	// OutcomePending means the run still has non-terminal TaskRuns.
	OutcomePending Outcome = ""

	// OutcomeSucceeded means every TaskRun succeeded.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFailed means a TaskRun failed and the rest were cancelled.
	OutcomeFailed Outcome = "failed"

	// OutcomeCancelled means the run was cancelled, by the caller or by a
	// body reporting a cancelled outcome.
	OutcomeCancelled Outcome = "cancelled"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	if o == OutcomePending {
		return "pending"
	}
	return string(o)
}

// RunStatus is a snapshot of how many TaskRuns of a run are in each state.
type RunStatus struct {
	Total     int `json:"total"`
	Blocked   int `json:"blocked"`
	Enqueued  int `json:"enqueued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Terminal returns the number of TaskRuns in a final state.
func (s RunStatus) Terminal() int {
	return s.Succeeded + s.Failed + s.Cancelled
}

func (s *RunStatus) add(state work.State) {
	s.Total++
	switch state {
	case work.StateBlocked:
		s.Blocked++
	case work.StateEnqueued:
		s.Enqueued++
	case work.StateRunning:
		s.Running++
	case work.StateSucceeded:
		s.Succeeded++
	case work.StateFailed:
		s.Failed++
	case work.StateCancelled:
		s.Cancelled++
	}
}

// Change describes the effect of one queue operation.
type Change struct {
	// Updated holds a snapshot of every TaskRun the operation touched, in
	// the order the transitions happened.
	Updated []work.TaskRun

	// Ready is the ID of the TaskRun that became ENQUEUED, or "".
	Ready string

	// Finished is true when this operation ended the run.
	Finished bool

	// Outcome is set when Finished is true.
	Outcome Outcome
}
