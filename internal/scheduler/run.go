package scheduler

import (
	"context"
	"sync"

	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/registry"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/work"
)

// ChainRun is one execution of a chain under a unique name. It is the
// registry.Run the scheduler hands out.
type ChainRun struct {
	eq     *taskqueue.EventQueue
	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger

	doneOnce sync.Once
	done     chan struct{}
}

var _ registry.Run = (*ChainRun)(nil)

// Name returns the unique name the run was submitted under.
func (r *ChainRun) Name() string { return r.eq.Name() }

// RunID returns the run identifier.
func (r *ChainRun) RunID() string { return r.eq.RunID() }

// Done reports whether every TaskRun is terminal.
func (r *ChainRun) Done() bool { return r.eq.Queue().Finished() }

// Finished returns a channel that is closed once the run has finished and
// its bookkeeping is complete.
func (r *ChainRun) Finished() <-chan struct{} { return r.done }

// Outcome returns how the run ended, or taskqueue.OutcomePending.
func (r *ChainRun) Outcome() taskqueue.Outcome { return r.eq.Queue().Outcome() }

// Snapshot returns copies of the run's TaskRuns in chain order.
func (r *ChainRun) Snapshot() []work.TaskRun { return r.eq.Queue().Snapshot() }

// Status returns the number of TaskRuns in each state.
func (r *ChainRun) Status() taskqueue.RunStatus { return r.eq.Queue().Status() }

// Wait blocks until the run finishes or ctx is done.
func (r *ChainRun) Wait(ctx context.Context) (taskqueue.Outcome, error) {
	select {
	case <-r.done:
		return r.Outcome(), nil
	case <-ctx.Done():
		return taskqueue.OutcomePending, ctx.Err()
	}
}

func (r *ChainRun) markDone() {
	r.doneOnce.Do(func() {
		r.cancel()
		close(r.done)
	})
}
