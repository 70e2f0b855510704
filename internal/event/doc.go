// Package event provides a pub-sub event bus carrying chain and TaskRun
// lifecycle events from the scheduler to observers.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Chain Lifecycle:
//   - [ChainStartedEvent]: A run became the active run of its name
//   - [ChainAppendedEvent]: Nodes were appended to an active run
//   - [ChainCancelledEvent]: A run was cancelled by name or superseded
//   - [ChainFinishedEvent]: Every TaskRun of a run reached a terminal state
//
// TaskRun Changes:
//   - [TaskStateEvent]: A TaskRun changed; carries the full snapshot
//
// # Ordering
//
// Handlers are called synchronously. The task queue publishes while holding
// its run lock, so all events of one run reach each handler in the order the
// transitions happened. Handlers must not call back into the scheduler and
// should hand work off quickly; the observer store copies snapshots into
// per-subscription buffers and returns.
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. A panicking handler is logged
// and does not prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeTaskState, func(e event.Event) {
//	    ts := e.(event.TaskStateEvent)
//	    fmt.Println(ts.Task.ChainName, ts.Task.TypeID, ts.Task.State)
//	})
//
//	id := bus.SubscribeAll(func(e event.Event) {
//	    fmt.Println(e.EventType(), e.Timestamp())
//	})
//	defer bus.Unsubscribe(id)
package event
