// Package workmanager is the entry point for submitting and observing
// unique chains. A Manager wires the registry, scheduler, event bus and
// status store together from one Config.
package workmanager

import (
	"context"
	"sync"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/config"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/event"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/observer"
	"github.com/Iron-Ham/workchain/internal/registry"
	"github.com/Iron-Ham/workchain/internal/scheduler"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/work"
)

// Handle identifies a submitted run. A KEEP submission returns a Handle equal
// to the one of the run it kept; an APPEND onto an active run returns that
// run's Handle.
type Handle struct {
	Name  string
	RunID string
}

// Manager owns the scheduling machinery for one process.
type Manager struct {
	logger        *logging.Logger
	reg           *registry.Registry
	bus           *event.Bus
	sched         *scheduler.Scheduler
	store         *observer.Store
	defaultPolicy chain.Policy
	ledgerDir     string

	mu     sync.Mutex
	runs   map[string]*scheduler.ChainRun // runID -> run, kept until Prune
	closed bool
}

// New validates cfg, builds the components and launches the worker pool.
// A nil cfg means config.Default(); a nil logger discards output.
func New(cfg *config.Config, catalog *work.Catalog, logger *logging.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	policy := chain.PolicyReplace
	if cfg.Scheduler.DefaultPolicy != "" {
		p, err := chain.ParsePolicy(cfg.Scheduler.DefaultPolicy)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	m := &Manager{
		logger:        logger,
		reg:           registry.New(logger),
		bus:           event.NewBus(event.WithLogger(logger)),
		defaultPolicy: policy,
		runs:          make(map[string]*scheduler.ChainRun),
	}
	m.store = observer.NewStore(m.bus,
		observer.WithRetention(cfg.Observer.Retention()),
		observer.WithLogger(logger))

	opts := []scheduler.Option{
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithLogger(logger),
		scheduler.WithBackoff(cfg.Scheduler.InitialBackoff(), cfg.Scheduler.MaxBackoff()),
		scheduler.WithDefaultRetries(cfg.Scheduler.MaxRetries),
	}
	if cfg.Ledger.Enabled {
		m.ledgerDir = cfg.Ledger.ResolveDir()
		opts = append(opts, scheduler.WithLedger(m.ledgerDir))
	}
	m.sched = scheduler.New(m.reg, m.bus, catalog, opts...)

	if err := m.sched.Launch(context.Background()); err != nil {
		m.store.Close()
		return nil, err
	}
	return m, nil
}

// DefaultPolicy returns the policy used when a submission names none.
func (m *Manager) DefaultPolicy() chain.Policy {
	return m.defaultPolicy
}

// LedgerDir returns the ledger directory, or "" when the ledger is disabled.
func (m *Manager) LedgerDir() string {
	return m.ledgerDir
}

// SubmitChain builds a chain from descriptors and submits it under name. An
// empty policy means the configured default.
func (m *Manager) SubmitChain(name string, policy chain.Policy, descriptors ...chain.Descriptor) (Handle, error) {
	h, _, err := m.Submit(name, policy, descriptors...)
	return h, err
}

// Submit is SubmitChain that also reports how the submission was resolved.
func (m *Manager) Submit(name string, policy chain.Policy, descriptors ...chain.Descriptor) (Handle, registry.Action, error) {
	if policy == "" {
		policy = m.defaultPolicy
	}

	c, err := chain.Build(descriptors...)
	if err != nil {
		return Handle{}, "", errors.NewChainError("submit rejected", err).WithName(name)
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Handle{}, "", errors.ErrSchedulerClosed
	}

	run, action, err := m.sched.SubmitChain(name, policy, c)
	if err != nil {
		return Handle{}, "", err
	}

	m.mu.Lock()
	m.runs[run.RunID()] = run
	m.mu.Unlock()

	m.logger.WithChain(name).Info("chain submitted",
		"run_id", run.RunID(), "policy", string(policy), "action", string(action))
	return Handle{Name: run.Name(), RunID: run.RunID()}, action, nil
}

// SubmitDefinition submits a chain loaded from a definition file. The
// definition's policy wins over fallback; an empty fallback means the
// configured default.
func (m *Manager) SubmitDefinition(def *chain.Definition, fallback chain.Policy) (Handle, registry.Action, error) {
	if fallback == "" {
		fallback = m.defaultPolicy
	}
	policy, err := def.PolicyOr(fallback)
	if err != nil {
		return Handle{}, "", err
	}
	return m.Submit(def.Name, policy, def.Descriptors()...)
}

// Cancel cancels the active run of name. It reports whether one existed;
// an unknown name is not an error.
func (m *Manager) Cancel(name string) bool {
	ok := m.sched.CancelByName(name)
	if !ok {
		m.logger.Debug("cancel ignored", "chain", name, "error", errors.ErrUnknownName.Error())
	}
	return ok
}

// Observe streams the TaskRuns of the current run of name.
func (m *Manager) Observe(name string) *observer.Subscription {
	return m.store.ObserveByName(name)
}

// ObserveByTag streams every retained TaskRun carrying tag.
func (m *Manager) ObserveByTag(tag string) *observer.Subscription {
	return m.store.ObserveByTag(tag)
}

// Snapshot returns the TaskRuns of the current run of name.
func (m *Manager) Snapshot(name string) []work.TaskRun {
	return m.store.Snapshot(name)
}

// SnapshotByTag returns every retained TaskRun carrying tag.
func (m *Manager) SnapshotByTag(tag string) []work.TaskRun {
	return m.store.SnapshotByTag(tag)
}

// Names returns the names with a retained run.
func (m *Manager) Names() []string {
	return m.store.Names()
}

// Wait blocks until the run identified by h finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, h Handle) (taskqueue.Outcome, error) {
	m.mu.Lock()
	run, ok := m.runs[h.RunID]
	m.mu.Unlock()
	if !ok {
		return taskqueue.OutcomePending, errors.NewNotFoundError("run", h.RunID).WithCause(errors.ErrUnknownName)
	}
	return run.Wait(ctx)
}

// Tasks returns the snapshot list of the run identified by h, whether or
// not it is still the current run of its name.
func (m *Manager) Tasks(h Handle) ([]work.TaskRun, error) {
	m.mu.Lock()
	run, ok := m.runs[h.RunID]
	m.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError("run", h.RunID).WithCause(errors.ErrUnknownName)
	}
	return run.Snapshot(), nil
}

// Prune drops finished runs from the status store and forgets their handles.
// It returns the number of runs the store dropped.
func (m *Manager) Prune() int {
	dropped := m.store.Prune()

	m.mu.Lock()
	for id, run := range m.runs {
		if run.Done() {
			delete(m.runs, id)
		}
	}
	m.mu.Unlock()
	return dropped
}

// Close cancels unfinished runs, waits for the workers and closes every
// subscription. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.sched.Close()
	m.store.Close()
}
