package observer

import (
	"sync"

	"github.com/Iron-Ham/workchain/internal/work"
)

type keyKind int

const (
	byName keyKind = iota
	byTag
)

type subKey struct {
	kind  keyKind
	value string
}

// Subscription delivers snapshot lists for one name or tag. The first value
// on C is the state at subscription time; each later value follows one
// change. Values are buffered without bound, so a slow reader never stalls
// the scheduler.
type Subscription struct {
	// C receives snapshot lists. It is closed by Close.
	C <-chan []work.TaskRun

	key   subKey
	store *Store

	out    chan []work.TaskRun
	signal chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending [][]work.TaskRun
	closed  bool

	closeOnce sync.Once
}

func newSubscription(store *Store, key subKey) *Subscription {
	out := make(chan []work.TaskRun)
	s := &Subscription{
		C:      out,
		key:    key,
		store:  store,
		out:    out,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// push queues a list for delivery. It never blocks.
func (s *Subscription) push(list []work.TaskRun) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, list)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() ([]work.TaskRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	list := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return list, true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			list, ok := s.pop()
			if !ok {
				break
			}
			select {
			case s.out <- list:
			case <-s.done:
				return
			}
		}
	}
}

// Close stops delivery, detaches the subscription from its store and closes
// C. Lists not yet received are dropped. Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.store.detach(s)
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
	})
}
