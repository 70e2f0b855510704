// Package taskqueue holds the run table of a chain run: the TaskRuns of one
// submission, in chain order, and the rules for moving them through their
// lifecycle.
//
// The core type is [Queue]. Every TaskRun is created when the run is: the
// first ENQUEUED and the rest BLOCKED. Completing a TaskRun enqueues its
// successor and hands the successor its computed input; a failure or a
// cancelled outcome cancels everything after it. States only move forward,
// and an attempt to leave a terminal state returns [ErrInvalidTransition].
// That is how a body's late result after a cancellation is discarded.
//
// [EventQueue] wraps a Queue and publishes every change on an event bus
// while holding its lock, so subscribers observe transitions in order.
//
// Finished runs can be written to a ledger directory with [SaveRecord] and
// read back with [LoadRecord] and [ListRecords]. Writes are atomic and
// guarded by a [FileLock].
//
// Usage:
//
//	q, err := taskqueue.New("img", "", c)
//	eq := taskqueue.NewEventQueue(q, bus)
//	eq.Announce()
//
//	ch, err := eq.Start(taskRunID)
//	input := ch.Updated[0].Input
//	// ... execute the body ...
//	ch, err = eq.Succeed(taskRunID, output)
//	if ch.Ready != "" {
//	    // schedule ch.Ready
//	}
package taskqueue
