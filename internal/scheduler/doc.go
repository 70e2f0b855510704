// Package scheduler executes chain runs.
//
// A [Scheduler] owns a bounded worker pool (sourcegraph/conc) fed by a single
// FIFO ready queue. Submitting a chain goes through the unique-work
// registry, which calls back into the scheduler as its registry.Executor:
// Start creates the run table and enqueues the first TaskRun, Cancel marks
// the run CANCELLED and cancels the body's context, Append splices nodes
// onto a run that has not finished.
//
// A worker takes the next ready TaskRun, moves it to RUNNING with its
// computed input, and runs the body registered for its type. Failures are
// retried with exponential backoff (cenkalti/backoff) up to the TaskRun's
// retry budget. Success stores the output and enqueues the successor; a
// final failure or a cancelled outcome cancels the rest of the chain. If
// the run was cancelled while the body executed, the body's result is
// discarded because the TaskRun is already terminal.
//
// When a run finishes the scheduler releases it from the registry, writes
// its ledger record when a ledger directory is configured, and closes the
// channel returned by [ChainRun.Finished].
package scheduler
