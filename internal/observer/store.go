// Package observer keeps the observable status of chain runs. A Store
// follows the scheduler's events and hands out TaskRun snapshot lists by
// unique name or by tag, either once or as a stream of updates.
package observer

import (
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/workchain/internal/event"
	"github.com/Iron-Ham/workchain/internal/logging"
	"github.com/Iron-Ham/workchain/internal/work"
)

type runRecord struct {
	name       string
	runID      string
	seq        uint64 // creation order across runs
	tasks      []work.TaskRun
	index      map[string]int // TaskRun ID -> position in tasks
	finished   bool
	finishedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps finished runs that are still the current run of their
// name for d before Prune drops them. Zero keeps them until superseded.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store holds TaskRun snapshots built from bus events.
type Store struct {
	bus    *event.Bus
	subID  string
	logger *logging.Logger

	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	runs    map[string]*runRecord // runID -> record
	current map[string]string     // name -> runID of the latest run
	tags    map[string]map[string]string
	nextSeq uint64
	subs    map[subKey]map[*Subscription]struct{}
	closed  bool
}

// NewStore creates a Store and subscribes it to every event on bus.
func NewStore(bus *event.Bus, opts ...Option) *Store {
	s := &Store{
		bus:     bus,
		logger:  logging.NopLogger(),
		now:     time.Now,
		runs:    make(map[string]*runRecord),
		current: make(map[string]string),
		tags:    make(map[string]map[string]string), // tag -> TaskRun ID -> runID
		subs:    make(map[subKey]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subID = bus.SubscribeAll(s.handle)
	return s
}

// handle runs synchronously on the publisher's goroutine, under the run's
// lock. It only updates maps and queues lists on subscriptions.
func (s *Store) handle(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch ev := e.(type) {
	case event.ChainStartedEvent:
		s.nextSeq++
		rec := &runRecord{
			name:  ev.Name,
			runID: ev.RunID,
			seq:   s.nextSeq,
			index: make(map[string]int, len(ev.Tasks)),
		}
		s.runs[ev.RunID] = rec
		s.current[ev.Name] = ev.RunID
		s.addTasks(rec, ev.Tasks)
		s.notify(rec, ev.Tasks, true)

	case event.ChainAppendedEvent:
		rec, ok := s.runs[ev.RunID]
		if !ok {
			return
		}
		s.addTasks(rec, ev.Tasks)
		s.notify(rec, ev.Tasks, false)

	case event.TaskStateEvent:
		rec, ok := s.runs[ev.Task.RunID]
		if !ok {
			return
		}
		i, ok := rec.index[ev.Task.ID]
		if !ok {
			return
		}
		rec.tasks[i] = ev.Task.Clone()
		s.notify(rec, []work.TaskRun{ev.Task}, false)

	case event.ChainFinishedEvent:
		if rec, ok := s.runs[ev.RunID]; ok {
			rec.finished = true
			rec.finishedAt = ev.Timestamp()
		}
	}
}

// addTasks must be called with s.mu held.
func (s *Store) addTasks(rec *runRecord, tasks []work.TaskRun) {
	for _, t := range tasks {
		rec.index[t.ID] = len(rec.tasks)
		rec.tasks = append(rec.tasks, t.Clone())
		for _, tag := range t.Tags {
			ids, ok := s.tags[tag]
			if !ok {
				ids = make(map[string]string)
				s.tags[tag] = ids
			}
			ids[t.ID] = rec.runID
		}
	}
}

// notify pushes fresh lists to the subscriptions affected by a change to
// changed within rec. Must be called with s.mu held.
func (s *Store) notify(rec *runRecord, changed []work.TaskRun, started bool) {
	if started || s.current[rec.name] == rec.runID {
		if subs := s.subs[subKey{byName, rec.name}]; len(subs) > 0 {
			list := cloneAll(rec.tasks)
			for sub := range subs {
				sub.push(list)
			}
		}
	}

	seen := make(map[string]bool)
	for _, t := range changed {
		for _, tag := range t.Tags {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			subs := s.subs[subKey{byTag, tag}]
			if len(subs) == 0 {
				continue
			}
			list := s.byTagLocked(tag)
			for sub := range subs {
				sub.push(list)
			}
		}
	}
}

// ObserveByName streams the TaskRuns of the current run of name. The first
// list is the current state, empty if name is unknown.
func (s *Store) ObserveByName(name string) *Subscription {
	return s.observe(subKey{byName, name})
}

// ObserveByTag streams every retained TaskRun carrying tag.
func (s *Store) ObserveByTag(tag string) *Subscription {
	return s.observe(subKey{byTag, tag})
}

func (s *Store) observe(key subKey) *Subscription {
	sub := newSubscription(s, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		sub.push(nil)
		go sub.Close()
		return sub
	}
	subs, ok := s.subs[key]
	if !ok {
		subs = make(map[*Subscription]struct{})
		s.subs[key] = subs
	}
	subs[sub] = struct{}{}

	if key.kind == byName {
		sub.push(s.byNameLocked(key.value))
	} else {
		sub.push(s.byTagLocked(key.value))
	}
	return sub
}

func (s *Store) detach(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs, ok := s.subs[sub.key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.subs, sub.key)
		}
	}
}

// Snapshot returns the TaskRuns of the current run of name, or an empty
// list if name is unknown.
func (s *Store) Snapshot(name string) []work.TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byNameLocked(name)
}

// SnapshotByTag returns every retained TaskRun carrying tag, ordered by run
// creation and then chain position.
func (s *Store) SnapshotByTag(tag string) []work.TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byTagLocked(tag)
}

// Names returns the sorted names with a retained run.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.current))
	for name := range s.current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) byNameLocked(name string) []work.TaskRun {
	rec, ok := s.runs[s.current[name]]
	if !ok {
		return []work.TaskRun{}
	}
	return cloneAll(rec.tasks)
}

func (s *Store) byTagLocked(tag string) []work.TaskRun {
	type ref struct {
		seq   uint64
		index int
		task  work.TaskRun
	}
	var refs []ref
	for id, runID := range s.tags[tag] {
		rec, ok := s.runs[runID]
		if !ok {
			continue
		}
		i := rec.index[id]
		refs = append(refs, ref{seq: rec.seq, index: i, task: rec.tasks[i]})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].seq != refs[j].seq {
			return refs[i].seq < refs[j].seq
		}
		return refs[i].index < refs[j].index
	})

	out := make([]work.TaskRun, len(refs))
	for i, r := range refs {
		out[i] = r.task.Clone()
	}
	return out
}

// Prune drops finished runs that were superseded by a newer run of the same
// name, and finished current runs older than the retention period when one
// is set. It returns the number of runs dropped.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for runID, rec := range s.runs {
		if !rec.finished {
			continue
		}
		isCurrent := s.current[rec.name] == runID
		expired := s.retention > 0 && now.Sub(rec.finishedAt) >= s.retention
		if isCurrent && !expired {
			continue
		}

		delete(s.runs, runID)
		if isCurrent {
			delete(s.current, rec.name)
		}
		for _, t := range rec.tasks {
			for _, tag := range t.Tags {
				delete(s.tags[tag], t.ID)
				if len(s.tags[tag]) == 0 {
					delete(s.tags, tag)
				}
			}
		}
		dropped++
	}
	if dropped > 0 {
		s.logger.Debug("pruned finished runs", "count", dropped)
	}
	return dropped
}

// Close unsubscribes from the bus and closes every open subscription.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var subs []*Subscription
	for _, set := range s.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	s.bus.Unsubscribe(s.subID)
	for _, sub := range subs {
		sub.Close()
	}
}

func cloneAll(tasks []work.TaskRun) []work.TaskRun {
	out := make([]work.TaskRun, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
