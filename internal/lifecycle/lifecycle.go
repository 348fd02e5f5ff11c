package lifecycle

import (
	"log/slog"
	"sync"
)

// AppState is the host application's visibility state.
type AppState int

const (
	Foreground AppState = iota
	Background
)

// String returns a human-readable label for the app state.
func (s AppState) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Notifier delivers host foreground/background transitions. Hosts with
// platform lifecycle hooks implement this; Broadcaster is the in-process
// implementation.
type Notifier interface {
	Subscribe(fn func(AppState)) (unsubscribe func())
}

// Broadcaster fans host lifecycle transitions out to subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	current     AppState
	subscribers map[int]func(AppState)
	nextID      int
}

// NewBroadcaster creates a broadcaster starting in the foreground state.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]func(AppState)),
	}
}

// Current returns the last published state.
func (b *Broadcaster) Current() AppState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Publish notifies all subscribers of a state transition. Publishing the
// current state again is a no-op.
func (b *Broadcaster) Publish(state AppState) {
	b.mu.Lock()
	if state == b.current {
		b.mu.Unlock()
		return
	}
	b.current = state
	fns := make([]func(AppState), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	slog.Debug("app lifecycle transition", "state", state.String())
	for _, fn := range fns {
		fn(state)
	}
}

// Subscribe registers a transition callback and returns its unsubscribe
// function.
func (b *Broadcaster) Subscribe(fn func(AppState)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}
