// Package registry enforces that at most one chain run is active per unique
// name and resolves conflicting submissions with a policy.
package registry

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/logging"
)

// Run is an active chain run as the registry sees it: something to look up,
// cancel or append to, never to drive.
type Run interface {
	Name() string
	RunID() string
	// Done reports whether every TaskRun of the run is terminal.
	Done() bool
}

// Executor starts, cancels and extends runs on behalf of the registry.
// Registry calls these while holding the per-name lock, so none of them may
// block on task execution or call back into the registry.
type Executor interface {
	// Start creates and schedules a new run of c under name.
	Start(name string, c *chain.Chain) (Run, error)
	// Cancel cancels every non-terminal TaskRun of run.
	Cancel(run Run, reason string)
	// Append splices c onto run. It returns false when run has already
	// finished and cannot be extended.
	Append(run Run, c *chain.Chain) bool
}

// Action records how a submission was resolved.
type Action string

const (
	ActionStarted  Action = "started"
	ActionReplaced Action = "replaced"
	ActionKept     Action = "kept"
	ActionAppended Action = "appended"
)

type entry struct {
	mu     sync.Mutex
	active Run
}

// Registry maps unique names to their active run. Each name has its own lock,
// so submissions under different names never wait for each other; the global
// lock only guards the map.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *logging.Logger
}

// New creates an empty registry. A nil logger discards output.
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// entry returns the entry for name, creating it when create is set.
// Entries live until Clear so that every caller locks the same mutex.
func (r *Registry) entry(name string, create bool) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok && create {
		e = &entry{}
		r.entries[name] = e
	}
	return e
}

// Submit resolves a submission of c under name:
//   - no active run: start c
//   - PolicyReplace: cancel the active run, then start c
//   - PolicyKeep: return the active run and discard c
//   - PolicyAppend: append c to the active run, or start c if the active
//     run finished before it could be extended
func (r *Registry) Submit(name string, policy chain.Policy, c *chain.Chain, exec Executor) (Run, Action, error) {
	if name == "" {
		return nil, "", errors.NewValidationError("unique name is required").WithField("name")
	}
	if c.Len() == 0 {
		return nil, "", errors.NewChainError("submit rejected", errors.ErrInvalidChain).WithName(name)
	}
	if !policy.Valid() {
		return nil, "", errors.NewValidationError("unknown policy").
			WithField("policy").
			WithValue(string(policy)).
			WithCause(errors.ErrInvalidPolicy)
	}

	e := r.entry(name, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	log := r.logger.WithChain(name)
	existing := e.active
	if existing != nil && existing.Done() {
		existing = nil
	}

	if existing == nil {
		return r.start(e, name, c, exec, ActionStarted, log)
	}

	switch policy {
	case chain.PolicyKeep:
		log.Debug("submission kept existing run", "run_id", existing.RunID())
		return existing, ActionKept, nil

	case chain.PolicyAppend:
		if exec.Append(existing, c) {
			log.Debug("submission appended", "run_id", existing.RunID(), "tasks", c.Len())
			return existing, ActionAppended, nil
		}
		return r.start(e, name, c, exec, ActionStarted, log)

	default: // PolicyReplace
		exec.Cancel(existing, "replaced")
		e.active = nil
		log.Info("run replaced", "run_id", existing.RunID())
		return r.start(e, name, c, exec, ActionReplaced, log)
	}
}

// start must be called with e.mu held.
func (r *Registry) start(e *entry, name string, c *chain.Chain, exec Executor, action Action, log *logging.Logger) (Run, Action, error) {
	run, err := exec.Start(name, c)
	if err != nil {
		return nil, "", err
	}
	e.active = run
	log.Debug("run started", "run_id", run.RunID(), "tasks", c.Len(), "action", string(action))
	return run, action, nil
}

// Cancel cancels the active run of name. It returns false, doing nothing,
// when name has no active run.
func (r *Registry) Cancel(name string, exec Executor) bool {
	e := r.entry(name, false)
	if e == nil {
		r.logger.Debug("cancel for unknown name ignored", "chain", name)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return false
	}
	run := e.active
	exec.Cancel(run, "cancelled by name")
	e.active = nil
	r.logger.WithChain(name).Info("run cancelled", "run_id", run.RunID())
	return true
}

// Release clears the entry of name when run is still its active run.
// Executors call it once a run has finished. It returns whether the entry
// was cleared.
func (r *Registry) Release(name string, run Run) bool {
	e := r.entry(name, false)
	if e == nil || run == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil || e.active.RunID() != run.RunID() {
		return false
	}
	e.active = nil
	return true
}

// Active returns the active run of name.
func (r *Registry) Active(name string) (Run, bool) {
	e := r.entry(name, false)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.active != nil
}

// Names returns the sorted names that currently have an active run.
func (r *Registry) Names() []string {
	r.mu.Lock()
	entries := make(map[string]*entry, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	r.mu.Unlock()

	var names []string
	for name, e := range entries {
		e.mu.Lock()
		if e.active != nil {
			names = append(names, name)
		}
		e.mu.Unlock()
	}
	sort.Strings(names)
	return names
}

// Clear forgets every entry without cancelling anything. It is meant for
// teardown after the executor has stopped.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}
