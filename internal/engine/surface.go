package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SurfaceID identifies a render surface allocated by a Session. Negative
// values are invalid and signal allocation failure.
type SurfaceID int64

// Valid reports whether the identifier refers to an allocated surface.
func (id SurfaceID) Valid() bool { return id >= 0 }

// SurfaceOptions constrain surface allocation.
type SurfaceOptions struct {
	MaxWidth   int
	MaxHeight  int
	FitPolicy  FitPolicy
	TunnelHint bool
}

// FitPolicy selects how decoded frames map onto the surface geometry.
type FitPolicy int

const (
	FitContain FitPolicy = iota
	FitCover
	FitFill
)

// RenderTarget is the renderable handle the presentation layer draws.
type RenderTarget struct {
	Surface SurfaceID
	Width   int
	Height  int
}

// SurfaceRegistry is the platform facility that turns an opaque surface
// identifier into a renderable target and releases it afterwards.
type SurfaceRegistry interface {
	PresentSurface(id SurfaceID) (RenderTarget, error)
	ReleaseSurface(id SurfaceID) error
}

// ErrUnknownSurface reports a present or release for an id the registry
// never allocated or already released.
var ErrUnknownSurface = errors.New("unknown surface id")

// SimSurfaceRegistry is an in-process SurfaceRegistry used by the sim
// engine and by tests. It tracks live surfaces so leak assertions can
// count them.
type SimSurfaceRegistry struct {
	mu       sync.Mutex
	next     SurfaceID
	surfaces map[SurfaceID]RenderTarget
}

// NewSimSurfaceRegistry creates an empty registry.
func NewSimSurfaceRegistry() *SimSurfaceRegistry {
	return &SimSurfaceRegistry{
		surfaces: make(map[SurfaceID]RenderTarget),
	}
}

// Register records a freshly allocated surface and returns its id.
func (r *SimSurfaceRegistry) Register(width, height int) SurfaceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.surfaces[id] = RenderTarget{Surface: id, Width: width, Height: height}

	slog.Debug("surface registered", "surface_id", id, "width", width, "height", height)
	return id
}

// PresentSurface resolves an id into its renderable target.
func (r *SimSurfaceRegistry) PresentSurface(id SurfaceID) (RenderTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.surfaces[id]
	if !ok {
		return RenderTarget{}, fmt.Errorf("present surface %d: %w", id, ErrUnknownSurface)
	}
	return target, nil
}

// ReleaseSurface frees an allocated surface. Releasing an unknown id is
// an error so double-release bugs surface in tests.
func (r *SimSurfaceRegistry) ReleaseSurface(id SurfaceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.surfaces[id]; !ok {
		return fmt.Errorf("release surface %d: %w", id, ErrUnknownSurface)
	}
	delete(r.surfaces, id)

	slog.Debug("surface released", "surface_id", id)
	return nil
}

// LiveCount reports how many surfaces are currently allocated.
func (r *SimSurfaceRegistry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.surfaces)
}
