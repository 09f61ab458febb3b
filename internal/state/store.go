package state

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Observer sees every transition inside the dispatch critical section, so
// observers run one at a time and in dispatch order. Observers must not
// dispatch.
type Observer func(prev, next State, a Action)

// Store applies actions to the current state one at a time.
type Store struct {
	mu        sync.Mutex
	state     State
	observers []Observer
	watchers  map[int]chan struct{}
	nextWatch int
	log       logrus.FieldLogger
}

func NewStore(log logrus.FieldLogger, observers ...Observer) *Store {
	return &Store{
		state:     Initial(),
		observers: observers,
		watchers:  make(map[int]chan struct{}),
		log:       log,
	}
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the resulting state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(a)
}

// DispatchIf applies a only when cond holds for the current state. The check
// and the transition are atomic with respect to other dispatches.
func (s *Store) DispatchIf(cond func(State) bool, a Action) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !cond(s.state) {
		return s.state, false
	}
	return s.apply(a), true
}

func (s *Store) apply(a Action) State {
	prev := s.state
	next := Reduce(prev, a)
	s.state = next

	if prev.Phase != next.Phase {
		s.log.WithField("action", a.Type()).Debugf("phase %s -> %s", prev.Phase, next.Phase)
	} else {
		s.log.WithField("action", a.Type()).Trace("dispatch")
	}

	for _, o := range s.observers {
		o(prev, next, a)
	}
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return next
}

// Watch returns a channel that receives a value after state changes. Bursts
// of changes coalesce into one notification; read State for the latest value.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatch
	s.nextWatch++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}
