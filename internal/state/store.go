package state

import (
	"log/slog"
	"sync"
)

// Transition is a pure function from one snapshot to the next.
type Transition func(Snapshot) Snapshot

// Observer receives every snapshot the store accepts.
type Observer func(Snapshot)

// Store holds the single authoritative snapshot. Apply serializes every
// read-modify-write: the transition function runs and observers are
// notified while the store lock is held, so no two transitions can
// interleave and no observer sees snapshots out of order. Observers must
// therefore return quickly and must not call back into the store.
type Store struct {
	mu        sync.Mutex
	current   Snapshot
	observers map[int]Observer
	nextID    int
	disposed  bool
}

// NewStore creates a store holding the initial snapshot.
func NewStore() *Store {
	return &Store{
		current:   New(),
		observers: make(map[int]Observer),
	}
}

// Current returns the latest accepted snapshot.
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply runs the transition atomically and returns the resulting
// snapshot. Observers are only notified when the snapshot structurally
// changed. After Dispose, Apply is a no-op returning the last snapshot.
func (s *Store) Apply(t Transition) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		slog.Debug("transition ignored on disposed store")
		return s.current
	}

	next := t(s.current)
	if next.Equal(s.current) {
		return s.current
	}
	s.current = next

	for _, observer := range s.observers {
		observer(next)
	}
	return next
}

// Subscribe registers an observer and returns its unsubscribe function.
// The observer is immediately called with the current snapshot so new
// subscribers never start from a stale view.
func (s *Store) Subscribe(observer Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		slog.Debug("subscribe ignored on disposed store")
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	observer(s.current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Dispose drops all observers and freezes the snapshot. Safe to call
// more than once; no observer is notified at or after this point.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.observers = make(map[int]Observer)
	slog.Debug("state store disposed")
}
