// Package work defines the boundary between the scheduling core and task bodies.
//
// A task body is a [Worker]: it receives its input as [Data] and reports an
// [Outcome]. The core never looks inside a body; it only routes data between
// bodies and records what they report.
//
// # Main Types
//
//   - [Data]: key/value payload restricted to primitives and slices of primitives
//   - [Outcome]: tagged result of one execution (success with output, failure, cancelled)
//   - [Worker] and [WorkerFunc]: the task-body contract
//   - [Catalog]: maps descriptor type IDs to worker factories
//
// # Data Threading
//
// [Merge] builds a node's input from its predecessor's output and its own explicit
// input. Explicit values win on key collision:
//
//	in := work.Merge(work.Data{"uri": "a", "n": 1}, work.Data{"uri": "b"})
//	// in == work.Data{"uri": "b", "n": 1}
package work
