package taskqueue

import (
	"sync"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/event"
	"github.com/Iron-Ham/workchain/internal/work"
)

// EventQueue wraps a Queue and publishes events to an event bus whenever
// queue operations occur. Each operation and its events happen under one
// mutex, so subscribers see the TaskRuns of a run change in order.
type EventQueue struct {
	mu  sync.Mutex
	q   *Queue
	bus *event.Bus
}

// NewEventQueue creates an EventQueue that publishes events on the given bus.
// A nil bus disables publishing.
func NewEventQueue(q *Queue, bus *event.Bus) *EventQueue {
	return &EventQueue{q: q, bus: bus}
}

// Queue returns the wrapped queue for read-only access.
func (eq *EventQueue) Queue() *Queue {
	return eq.q
}

// Name returns the chain name of the run.
func (eq *EventQueue) Name() string { return eq.q.Name() }

// RunID returns the run identifier.
func (eq *EventQueue) RunID() string { return eq.q.RunID() }

// Announce publishes a ChainStartedEvent carrying the initial snapshots.
// Call it once, before the first TaskRun is started.
func (eq *EventQueue) Announce() {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	eq.publish(event.NewChainStartedEvent(eq.q.Name(), eq.q.RunID(), eq.q.Snapshot()))
}

// Start moves a TaskRun to RUNNING and publishes its new state.
func (eq *EventQueue) Start(taskRunID string) (Change, error) {
	return eq.apply(func() (Change, error) { return eq.q.Start(taskRunID) })
}

// Retry records a failed attempt and publishes the updated TaskRun.
func (eq *EventQueue) Retry(taskRunID, cause string) (Change, error) {
	return eq.apply(func() (Change, error) { return eq.q.Retry(taskRunID, cause) })
}

// Succeed marks a TaskRun SUCCEEDED and publishes it, the successor it
// enqueued, and a ChainFinishedEvent if the run ended.
func (eq *EventQueue) Succeed(taskRunID string, output work.Data) (Change, error) {
	return eq.apply(func() (Change, error) { return eq.q.Succeed(taskRunID, output) })
}

// Fail marks a TaskRun FAILED, cancels the rest, and publishes every change.
func (eq *EventQueue) Fail(taskRunID, cause string) (Change, error) {
	return eq.apply(func() (Change, error) { return eq.q.Fail(taskRunID, cause) })
}

// Abort marks a TaskRun CANCELLED after a cancelled outcome, cancels the
// rest, and publishes every change.
func (eq *EventQueue) Abort(taskRunID string) (Change, error) {
	return eq.apply(func() (Change, error) { return eq.q.Abort(taskRunID) })
}

// Cancel cancels the run and publishes a ChainCancelledEvent followed by the
// TaskRun changes. Nothing is published for a run that already finished.
func (eq *EventQueue) Cancel(reason string) Change {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	ch := eq.q.Cancel()
	if !ch.Finished {
		return ch
	}
	eq.publish(event.NewChainCancelledEvent(eq.q.Name(), eq.q.RunID(), reason))
	eq.publishChange(ch)
	return ch
}

// Append splices c onto the run and publishes a ChainAppendedEvent. It
// returns false when the run has already finished.
func (eq *EventQueue) Append(c *chain.Chain) (Change, bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	ch, ok := eq.q.Append(c)
	if !ok {
		return ch, false
	}
	eq.publish(event.NewChainAppendedEvent(eq.q.Name(), eq.q.RunID(), ch.Updated))
	return ch, true
}

func (eq *EventQueue) apply(op func() (Change, error)) (Change, error) {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	ch, err := op()
	eq.publishChange(ch)
	return ch, err
}

// publishChange must be called while eq.mu is held.
func (eq *EventQueue) publishChange(ch Change) {
	for _, run := range ch.Updated {
		eq.publish(event.NewTaskStateEvent(run))
	}
	if ch.Finished {
		eq.publish(event.NewChainFinishedEvent(eq.q.Name(), eq.q.RunID(), ch.Outcome.String()))
	}
}

func (eq *EventQueue) publish(e event.Event) {
	if eq.bus != nil {
		eq.bus.Publish(e)
	}
}

// Ensure the event types satisfy the Event interface at compile time.
var (
	_ event.Event = event.ChainStartedEvent{}
	_ event.Event = event.ChainAppendedEvent{}
	_ event.Event = event.ChainCancelledEvent{}
	_ event.Event = event.ChainFinishedEvent{}
	_ event.Event = event.TaskStateEvent{}
)
