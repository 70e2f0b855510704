package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/event"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/registry"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Defaults used when no option overrides them.
const (
	DefaultWorkers        = 4
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLedger writes a record of every finished run into dir.
func WithLedger(dir string) Option {
	return func(s *Scheduler) { s.ledgerDir = dir }
}

// WithBackoff sets the exponential backoff bounds between retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Scheduler) {
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max > 0 {
			s.maxBackoff = max
		}
	}
}

// WithDefaultRetries sets the retry budget for descriptors that do not set
// their own.
func WithDefaultRetries(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.defaultRetries = n
		}
	}
}

type readyItem struct {
	run       *ChainRun
	taskRunID string
}

// Scheduler executes chain runs on a bounded worker pool. Workers take
// ENQUEUED TaskRuns from one FIFO ready queue shared by all chains, so a
// long body only occupies its own worker.
//
// Scheduler implements registry.Executor. Start, Cancel and Append only
// touch in-memory state and never wait for a task body.
type Scheduler struct {
	reg     *registry.Registry
	bus     *event.Bus
	catalog *work.Catalog
	logger  *logging.Logger

	workers        int
	ledgerDir      string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	defaultRetries int

	baseCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	ready    []readyItem
	runs     map[string]*ChainRun // runID -> unfinished run
	launched bool
	closed   bool
	pool     *pool.Pool
	unwatch  func() bool
}

var _ registry.Executor = (*Scheduler)(nil)

// New creates a Scheduler. Call Launch to start the workers.
func New(reg *registry.Registry, bus *event.Bus, catalog *work.Catalog, opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:            reg,
		bus:            bus,
		catalog:        catalog,
		logger:         logging.NopLogger(),
		workers:        DefaultWorkers,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		runs:           make(map[string]*ChainRun),
	}
	s.cond = sync.NewCond(&s.mu)
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts the worker pool. The scheduler closes itself when ctx is
// done. Launching twice is a no-op.
func (s *Scheduler) Launch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrSchedulerClosed
	}
	if s.launched {
		return nil
	}
	s.launched = true

	s.pool = pool.New().WithMaxGoroutines(s.workers)
	for i := 0; i < s.workers; i++ {
		s.pool.Go(s.worker)
	}
	s.unwatch = context.AfterFunc(ctx, s.Close)
	s.logger.Info("scheduler launched", "workers", s.workers)
	return nil
}

// Close cancels every unfinished run, stops the workers and waits for them.
// Bodies still running see their context cancelled; their results are
// discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.ready = nil
	runs := make([]*ChainRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	p := s.pool
	unwatch := s.unwatch
	s.cond.Broadcast()
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	for _, r := range runs {
		if !s.reg.Cancel(r.Name(), s) {
			// not the active run of its name any more
			s.Cancel(r, "scheduler closed")
		}
	}
	s.stop()
	if p != nil {
		p.Wait()
	}
	s.logger.Info("scheduler closed")
}

// SubmitChain submits c under name through the registry.
func (s *Scheduler) SubmitChain(name string, policy chain.Policy, c *chain.Chain) (*ChainRun, registry.Action, error) {
	run, action, err := s.reg.Submit(name, policy, c, s)
	if err != nil {
		return nil, "", err
	}
	return run.(*ChainRun), action, nil
}

// CancelByName cancels the active run of name. Unknown names are ignored.
func (s *Scheduler) CancelByName(name string) bool {
	return s.reg.Cancel(name, s)
}

// Start creates a run of c under name and enqueues its first TaskRun.
// It is called by the registry with the name's lock held.
func (s *Scheduler) Start(name string, c *chain.Chain) (registry.Run, error) {
	q, err := taskqueue.New(name, "", c)
	if err != nil {
		return nil, err
	}

	r := &ChainRun{
		eq:   taskqueue.NewEventQueue(q, s.bus),
		log:  s.logger.WithChain(name).WithRun(q.RunID()),
		done: make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(s.baseCtx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r.cancel()
		return nil, errors.ErrSchedulerClosed
	}
	s.runs[r.RunID()] = r
	s.mu.Unlock()

	r.eq.Announce()
	r.log.Info("chain started", "tasks", c.Len())
	s.enqueue(r, q.Snapshot()[0].ID)
	return r, nil
}

// Cancel marks every non-terminal TaskRun of run CANCELLED and cancels the
// context of a body that is still executing.
func (s *Scheduler) Cancel(run registry.Run, reason string) {
	r, ok := run.(*ChainRun)
	if !ok {
		return
	}
	ch := r.eq.Cancel(reason)
	r.cancel()
	if ch.Finished {
		r.log.Info("chain cancelled", "reason", reason)
		s.finish(r, taskqueue.OutcomeCancelled)
	}
}

// Append splices c onto run. It fails when run has already finished.
func (s *Scheduler) Append(run registry.Run, c *chain.Chain) bool {
	r, ok := run.(*ChainRun)
	if !ok {
		return false
	}
	if _, ok := r.eq.Append(c); !ok {
		return false
	}
	r.log.Info("chain appended", "tasks", c.Len())
	return true
}

func (s *Scheduler) enqueue(r *ChainRun, taskRunID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.ready = append(s.ready, readyItem{run: r, taskRunID: taskRunID})
	s.cond.Signal()
}

// next blocks until a ready item is available. It returns false once the
// scheduler is closed.
func (s *Scheduler) next() (readyItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.ready) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return readyItem{}, false
	}
	item := s.ready[0]
	s.ready[0] = readyItem{}
	s.ready = s.ready[1:]
	return item, true
}

func (s *Scheduler) worker() {
	for {
		item, ok := s.next()
		if !ok {
			return
		}
		s.execute(item)
	}
}

func (s *Scheduler) execute(item readyItem) {
	r := item.run
	ch, err := r.eq.Start(item.taskRunID)
	if err != nil {
		// cancelled while waiting in the ready queue
		r.log.Debug("skipping task run", "task_run_id", item.taskRunID, "error", err)
		return
	}
	tr := ch.Updated[0]
	log := r.log.WithTask(tr.ID).With("type", tr.TypeID, "index", tr.Index)
	log.Debug("task started")

	outcome := s.runBody(r, tr, log)

	switch outcome.Kind {
	case work.OutcomeSuccess:
		ch, err = r.eq.Succeed(tr.ID, outcome.Output)
	case work.OutcomeCancelled:
		ch, err = r.eq.Abort(tr.ID)
	default:
		ch, err = r.eq.Fail(tr.ID, errorMessage(outcome.Err))
	}
	if err != nil {
		log.Info("task result discarded", "outcome", outcome.Kind.String(), "error", err)
		return
	}

	switch outcome.Kind {
	case work.OutcomeSuccess:
		log.Info("task succeeded")
	case work.OutcomeCancelled:
		log.Info("task cancelled itself")
	default:
		log.Warn("task failed", "error", errorMessage(outcome.Err))
	}

	if ch.Ready != "" {
		s.enqueue(r, ch.Ready)
	}
	if ch.Finished {
		s.reg.Release(r.Name(), r)
		s.finish(r, ch.Outcome)
	}
}

// runBody executes the body of tr, retrying failures with exponential
// backoff up to the TaskRun's retry budget.
func (s *Scheduler) runBody(r *ChainRun, tr work.TaskRun, log *logging.Logger) work.Outcome {
	w, err := s.catalog.New(tr.TypeID)
	if err != nil {
		return work.Failure(err)
	}

	retries := tr.MaxRetries
	if retries < 0 {
		retries = s.defaultRetries
	}

	attempt := 0
	var outcome work.Outcome
	op := func() error {
		if err := r.ctx.Err(); err != nil {
			outcome = work.Cancelled()
			return backoff.Permanent(err)
		}
		attempt++
		outcome = invoke(r.ctx, w, tr.Input, log)

		switch outcome.Kind {
		case work.OutcomeSuccess:
			if err := outcome.Output.Validate(); err != nil {
				outcome = work.Failure(errors.Wrap(err, "invalid output"))
				return backoff.Permanent(err)
			}
			return nil
		case work.OutcomeCancelled:
			return backoff.Permanent(errors.ErrCanceled)
		default:
			terr := errors.NewTaskExecutionError(tr.TypeID, outcome.Err).
				WithTaskRunID(tr.ID).
				WithAttempt(attempt)
			var cause errors.WorkchainError
			if errors.As(outcome.Err, &cause) && !cause.IsRetryable() {
				terr.WithRetryable(false)
			}
			outcome.Err = terr
			if r.ctx.Err() != nil || !errors.IsRetryable(terr) {
				return backoff.Permanent(terr)
			}
			return terr
		}
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("task attempt failed, retrying", "attempt", attempt, "retry_in", wait.String(), "error", err.Error())
		if _, rerr := r.eq.Retry(tr.ID, err.Error()); rerr != nil {
			log.Debug("retry not recorded", "error", rerr)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(retries)), r.ctx)
	_ = backoff.RetryNotify(op, b, notify)
	return outcome
}

func (s *Scheduler) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0 // bounded by the retry count
	b.Reset()
	return b
}

// invoke runs one attempt of a body. Panics become failures.
func invoke(ctx context.Context, w work.Worker, input work.Data, log *logging.Logger) (outcome work.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("task body panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			outcome = work.Failure(fmt.Errorf("panic: %v", p))
		}
	}()
	return w.Execute(ctx, input.Clone())
}

// finish records a finished run: ledger entry, bookkeeping, waiters.
func (s *Scheduler) finish(r *ChainRun, outcome taskqueue.Outcome) {
	s.mu.Lock()
	delete(s.runs, r.RunID())
	s.mu.Unlock()

	if s.ledgerDir != "" {
		if err := taskqueue.SaveRecord(s.ledgerDir, r.eq.Queue().Record()); err != nil {
			r.log.Error("failed to write ledger record", "error", err)
		}
	}
	r.log.Info("chain finished", "outcome", outcome.String())
	r.markDone()
}

func errorMessage(err error) string {
	if err == nil {
		return "task failed"
	}
	return err.Error()
}
