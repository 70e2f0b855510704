// Package event defines the events the scheduler publishes about chain runs
// and their TaskRuns, and the bus that carries them.
package event

import (
	"time"

	"github.com/Iron-Ham/workchain/internal/work"
)

// Event type identifiers. Convention: "category.action".
const (
	TypeChainStarted   = "chain.started"
	TypeChainAppended  = "chain.appended"
	TypeChainCancelled = "chain.cancelled"
	TypeChainFinished  = "chain.finished"
	TypeTaskState      = "task.state"

	// Wildcard subscribes to every event type.
	Wildcard = "*"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Chain Events
// -----------------------------------------------------------------------------

// ChainStartedEvent is emitted when a new run becomes the active run of a name.
// Tasks holds the initial snapshots: the first ENQUEUED, the rest BLOCKED.
type ChainStartedEvent struct {
	baseEvent
	Name  string
	RunID string
	Tasks []work.TaskRun
}

// NewChainStartedEvent creates a ChainStartedEvent.
func NewChainStartedEvent(name, runID string, tasks []work.TaskRun) ChainStartedEvent {
	return ChainStartedEvent{
		baseEvent: newBaseEvent(TypeChainStarted),
		Name:      name,
		RunID:     runID,
		Tasks:     tasks,
	}
}

// ChainAppendedEvent is emitted when nodes are spliced onto an active run.
type ChainAppendedEvent struct {
	baseEvent
	Name  string
	RunID string
	Tasks []work.TaskRun // the appended TaskRuns only
}

// NewChainAppendedEvent creates a ChainAppendedEvent.
func NewChainAppendedEvent(name, runID string, tasks []work.TaskRun) ChainAppendedEvent {
	return ChainAppendedEvent{
		baseEvent: newBaseEvent(TypeChainAppended),
		Name:      name,
		RunID:     runID,
		Tasks:     tasks,
	}
}

// ChainCancelledEvent is emitted when a run is cancelled from outside,
// either by name or because a REPLACE submission superseded it.
type ChainCancelledEvent struct {
	baseEvent
	Name   string
	RunID  string
	Reason string
}

// NewChainCancelledEvent creates a ChainCancelledEvent.
func NewChainCancelledEvent(name, runID, reason string) ChainCancelledEvent {
	return ChainCancelledEvent{
		baseEvent: newBaseEvent(TypeChainCancelled),
		Name:      name,
		RunID:     runID,
		Reason:    reason,
	}
}

// ChainFinishedEvent is emitted once per run, when every TaskRun is terminal.
type ChainFinishedEvent struct {
	baseEvent
	Name    string
	RunID   string
	Outcome string // "succeeded", "failed" or "cancelled"
}

// NewChainFinishedEvent creates a ChainFinishedEvent.
func NewChainFinishedEvent(name, runID, outcome string) ChainFinishedEvent {
	return ChainFinishedEvent{
		baseEvent: newBaseEvent(TypeChainFinished),
		Name:      name,
		RunID:     runID,
		Outcome:   outcome,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskStateEvent is emitted on every TaskRun change: a state transition or a
// retry recorded while RUNNING.
type TaskStateEvent struct {
	baseEvent
	Task work.TaskRun
}

// NewTaskStateEvent creates a TaskStateEvent.
func NewTaskStateEvent(task work.TaskRun) TaskStateEvent {
	return TaskStateEvent{
		baseEvent: newBaseEvent(TypeTaskState),
		Task:      task,
	}
}
