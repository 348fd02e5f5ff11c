package playback

import (
	"log/slog"
	"sync"

	"playsync.dev/internal/engine"
)

// engineHandle pairs a native session with its allocated surface. It is
// exclusively owned by one controller and released exactly once; every
// acquisition path has one matching release even on cancellation.
type engineHandle struct {
	session  engine.Session
	surface  engine.SurfaceID
	registry engine.SurfaceRegistry
	target   engine.RenderTarget

	releaseOnce sync.Once
}

// release frees the surface and closes the session. Teardown failures
// are logged and swallowed: leaking the resource is worse than a noisy
// dispose.
func (h *engineHandle) release() {
	h.releaseOnce.Do(func() {
		slog.Debug("releasing engine handle", "surface_id", h.surface)

		if h.surface.Valid() && h.registry != nil {
			if err := h.registry.ReleaseSurface(h.surface); err != nil {
				slog.Error("failed to release surface during teardown", "surface_id", h.surface, "error", err)
			}
		}
		if err := h.session.Close(); err != nil {
			slog.Error("failed to close engine session during teardown", "error", err)
		}

		slog.Debug("engine handle released", "surface_id", h.surface)
	})
}

// teardownStack collects release steps acquired during initialization so
// a cancelled or failed attempt unwinds everything it acquired, in
// reverse order.
type teardownStack struct {
	steps []func()
}

func (t *teardownStack) push(step func()) {
	t.steps = append(t.steps, step)
}

func (t *teardownStack) unwind() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		t.steps[i]()
	}
	t.steps = nil
}

// commit drops the collected steps: ownership transferred to the handle.
func (t *teardownStack) commit() {
	t.steps = nil
}
