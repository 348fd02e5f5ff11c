package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"playsync.dev/internal/engine"
	"playsync.dev/internal/playback"
)

// ErrRegistryClosed reports a create on a registry after DisposeAll.
var ErrRegistryClosed = errors.New("session registry closed")

// Registry tracks every live playback controller by an opaque session
// id, so callers holding only a handle string can reach their
// controller, and shutdown can dispose everything that is still open.
type Registry struct {
	factory  engine.Factory
	surfaces engine.SurfaceRegistry

	mu          sync.Mutex
	controllers map[string]*playback.Controller
	closed      bool
}

// NewRegistry creates an empty registry. Controllers created through it
// share the given factory and surface registry.
func NewRegistry(factory engine.Factory, surfaces engine.SurfaceRegistry) *Registry {
	slog.Debug("creating session registry")
	return &Registry{
		factory:     factory,
		surfaces:    surfaces,
		controllers: make(map[string]*playback.Controller),
	}
}

// Create allocates a fresh controller and returns its session id.
func (r *Registry) Create() (string, *playback.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", nil, ErrRegistryClosed
	}

	id := uuid.NewString()
	controller := playback.New(r.factory, r.surfaces)
	r.controllers[id] = controller

	slog.Info("playback session created", "session_id", id, "live_sessions", len(r.controllers))
	return id, controller, nil
}

// Get returns the controller for id, if it is still registered.
func (r *Registry) Get(id string) (*playback.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	controller, ok := r.controllers[id]
	return controller, ok
}

// Dispose removes and disposes the controller for id. Unknown ids are
// reported but not an error; dispose races are expected at shutdown.
func (r *Registry) Dispose(id string) bool {
	r.mu.Lock()
	controller, ok := r.controllers[id]
	delete(r.controllers, id)
	r.mu.Unlock()

	if !ok {
		slog.Debug("dispose for unknown session", "session_id", id)
		return false
	}

	controller.Dispose()
	slog.Info("playback session disposed", "session_id", id)
	return true
}

// DisposeAll disposes every live controller and closes the registry.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	controllers := r.controllers
	r.controllers = make(map[string]*playback.Controller)
	r.closed = true
	r.mu.Unlock()

	for id, controller := range controllers {
		controller.Dispose()
		slog.Debug("playback session disposed during shutdown", "session_id", id)
	}

	slog.Info("session registry closed", "disposed_sessions", len(controllers))
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
