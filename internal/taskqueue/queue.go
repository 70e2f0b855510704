package taskqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/workchain/internal/chain"
	wcerrors "github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Queue is the run table of one chain run: an ordered list of TaskRuns where
// only the first non-terminal one may be ENQUEUED or RUNNING.
// All methods are safe for concurrent use via an internal mutex.
type Queue struct {
	mu         sync.Mutex
	name       string
	runID      string
	slots      []*slot
	index      map[string]int // TaskRun ID -> position
	finished   bool
	outcome    Outcome
	createdAt  time.Time
	finishedAt *time.Time
}

type slot struct {
	run  work.TaskRun
	node *chain.Node
}

// New creates the run table for chain c submitted under name. Every TaskRun
// is created up front: the first ENQUEUED, the rest BLOCKED. An empty runID
// gets a generated one.
func New(name, runID string, c *chain.Chain) (*Queue, error) {
	if c.Len() == 0 {
		return nil, wcerrors.ErrEmptyChain
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	now := time.Now()
	q := &Queue{
		name:      name,
		runID:     runID,
		index:     make(map[string]int, c.Len()),
		createdAt: now,
	}
	q.addNodes(c.Nodes(), now)
	q.slots[0].run.State = work.StateEnqueued
	return q, nil
}

func (q *Queue) addNodes(nodes []*chain.Node, now time.Time) []*slot {
	added := make([]*slot, 0, len(nodes))
	for _, n := range nodes {
		s := &slot{
			node: n,
			run: work.TaskRun{
				ID:         uuid.NewString(),
				ChainName:  q.name,
				RunID:      q.runID,
				Index:      len(q.slots),
				TypeID:     n.Descriptor.TypeID(),
				State:      work.StateBlocked,
				Tags:       n.Descriptor.Tags(),
				MaxRetries: n.Descriptor.MaxRetries(),
				UpdatedAt:  now,
			},
		}
		q.index[s.run.ID] = len(q.slots)
		q.slots = append(q.slots, s)
		added = append(added, s)
	}
	return added
}

// Name returns the unique chain name the run was submitted under.
func (q *Queue) Name() string { return q.name }

// RunID returns the run identifier.
func (q *Queue) RunID() string { return q.runID }

// CreatedAt returns when the run was created.
func (q *Queue) CreatedAt() time.Time { return q.createdAt }

// Start moves an ENQUEUED TaskRun to RUNNING and computes its input from the
// predecessor's output and its own explicit input. The returned Change holds
// the snapshot, including Input.
func (q *Queue) Start(taskRunID string) (Change, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, s, err := q.lookup(taskRunID)
	if err != nil {
		return Change{}, err
	}
	if err := q.transition(s, work.StateRunning); err != nil {
		return Change{}, err
	}
	s.run.Input = q.inputFor(i)
	s.run.Attempts = 1
	return Change{Updated: []work.TaskRun{s.run.Clone()}}, nil
}

// Retry records a failed attempt of a RUNNING TaskRun that will be retried.
// The TaskRun stays RUNNING.
func (q *Queue) Retry(taskRunID, cause string) (Change, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, s, err := q.lookup(taskRunID)
	if err != nil {
		return Change{}, err
	}
	if s.run.State != work.StateRunning {
		return Change{}, fmt.Errorf("%w: cannot retry %s in state %s", ErrInvalidTransition, taskRunID, s.run.State)
	}
	s.run.Attempts++
	s.run.Error = cause
	s.run.UpdatedAt = time.Now()
	return Change{Updated: []work.TaskRun{s.run.Clone()}}, nil
}

// Succeed marks a RUNNING TaskRun SUCCEEDED with output and enqueues its
// successor. When it was the last TaskRun the run finishes.
func (q *Queue) Succeed(taskRunID string, output work.Data) (Change, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, s, err := q.lookup(taskRunID)
	if err != nil {
		return Change{}, err
	}
	if err := q.transition(s, work.StateSucceeded); err != nil {
		return Change{}, err
	}
	s.run.Output = output.Clone()
	s.run.Error = ""

	ch := Change{Updated: []work.TaskRun{s.run.Clone()}}
	if i+1 < len(q.slots) {
		next := q.slots[i+1]
		if err := q.transition(next, work.StateEnqueued); err != nil {
			// Successors are BLOCKED until this point unless the run was
			// cancelled, which the transition above would have rejected.
			return ch, err
		}
		ch.Updated = append(ch.Updated, next.run.Clone())
		ch.Ready = next.run.ID
		return ch, nil
	}
	q.finish(&ch, OutcomeSucceeded)
	return ch, nil
}

// Fail marks a RUNNING TaskRun FAILED and cancels every TaskRun after it.
func (q *Queue) Fail(taskRunID, cause string) (Change, error) {
	return q.stop(taskRunID, work.StateFailed, cause, OutcomeFailed)
}

// Abort marks a RUNNING TaskRun CANCELLED because its body reported a
// cancelled outcome, and cancels every TaskRun after it.
func (q *Queue) Abort(taskRunID string) (Change, error) {
	return q.stop(taskRunID, work.StateCancelled, "", OutcomeCancelled)
}

func (q *Queue) stop(taskRunID string, to work.State, cause string, outcome Outcome) (Change, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, s, err := q.lookup(taskRunID)
	if err != nil {
		return Change{}, err
	}
	if s.run.State != work.StateRunning {
		return Change{}, fmt.Errorf("%w: cannot stop %s in state %s", ErrInvalidTransition, taskRunID, s.run.State)
	}
	if err := q.transition(s, to); err != nil {
		return Change{}, err
	}
	if cause != "" {
		s.run.Error = cause
	}

	ch := Change{Updated: []work.TaskRun{s.run.Clone()}}
	ch.Updated = append(ch.Updated, q.cancelFrom(i+1)...)
	q.finish(&ch, outcome)
	return ch, nil
}

// Cancel marks every non-terminal TaskRun CANCELLED, including a RUNNING
// one, and finishes the run. Cancelling a finished run changes nothing.
func (q *Queue) Cancel() Change {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished {
		return Change{}
	}
	ch := Change{Updated: q.cancelFrom(0)}
	q.finish(&ch, OutcomeCancelled)
	return ch
}

// Append splices the nodes of c after the current last TaskRun. The first
// appended node receives the current last TaskRun's output as its
// predecessor output. Append returns false, changing nothing, when the run
// has already finished.
func (q *Queue) Append(c *chain.Chain) (Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished || c.Len() == 0 {
		return Change{}, false
	}
	added := q.addNodes(c.Nodes(), time.Now())
	ch := Change{Updated: make([]work.TaskRun, 0, len(added))}
	for _, s := range added {
		ch.Updated = append(ch.Updated, s.run.Clone())
	}
	return ch, true
}

// cancelFrom cancels every non-terminal TaskRun at position from or later.
// The caller must hold q.mu.
func (q *Queue) cancelFrom(from int) []work.TaskRun {
	var updated []work.TaskRun
	for _, s := range q.slots[from:] {
		if s.run.State.IsTerminal() {
			continue
		}
		if err := q.transition(s, work.StateCancelled); err == nil {
			updated = append(updated, s.run.Clone())
		}
	}
	return updated
}

// finish records the end of the run. The caller must hold q.mu.
func (q *Queue) finish(ch *Change, outcome Outcome) {
	now := time.Now()
	q.finished = true
	q.outcome = outcome
	q.finishedAt = &now
	ch.Finished = true
	ch.Outcome = outcome
}

// transition validates and applies a state change. The caller must hold q.mu.
func (q *Queue) transition(s *slot, to work.State) error {
	from := s.run.State
	if !work.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition %s from %s to %s", ErrInvalidTransition, s.run.ID, from, to)
	}
	now := time.Now()
	s.run.State = to
	s.run.UpdatedAt = now
	if to == work.StateRunning {
		s.run.StartedAt = &now
	}
	if to.IsTerminal() {
		s.run.FinishedAt = &now
	}
	return nil
}

// inputFor computes the input of the TaskRun at position i. The caller must
// hold q.mu.
func (q *Queue) inputFor(i int) work.Data {
	n := q.slots[i].node
	if i == 0 {
		return n.ComputedInput(nil)
	}
	prev := q.slots[i-1].run.Output
	if n.Predecessor == nil {
		// first node of an appended chain continues from the current tail
		return work.Merge(prev, n.Descriptor.Input())
	}
	return n.ComputedInput(prev)
}

func (q *Queue) lookup(taskRunID string) (int, *slot, error) {
	i, ok := q.index[taskRunID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskRunID)
	}
	return i, q.slots[i], nil
}

// Get returns a snapshot of the TaskRun with the given ID.
func (q *Queue) Get(taskRunID string) (work.TaskRun, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, s, err := q.lookup(taskRunID)
	if err != nil {
		return work.TaskRun{}, err
	}
	return s.run.Clone(), nil
}

// Snapshot returns copies of all TaskRuns in chain order.
func (q *Queue) Snapshot() []work.TaskRun {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() []work.TaskRun {
	out := make([]work.TaskRun, len(q.slots))
	for i, s := range q.slots {
		out[i] = s.run.Clone()
	}
	return out
}

// Status returns the number of TaskRuns in each state.
func (q *Queue) Status() RunStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s RunStatus
	for _, sl := range q.slots {
		s.add(sl.run.State)
	}
	return s
}

// Finished reports whether the run has ended. A finished run accepts no
// appends.
func (q *Queue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Outcome returns how the run ended, or OutcomePending.
func (q *Queue) Outcome() Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outcome
}

// Len returns the number of TaskRuns, including appended ones.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}
