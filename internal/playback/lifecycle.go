package playback

import (
	"log/slog"

	"playsync.dev/internal/lifecycle"
)

// AttachLifecycle binds the controller to application foreground and
// background transitions. Moving to the background pauses playback and
// remembers the intent; returning to the foreground resumes only when
// that pause was lifecycle-initiated. Sessions configured to play in
// the background are left untouched. Attaching replaces any previous
// binding.
func (c *Controller) AttachLifecycle(notifier lifecycle.Notifier) {
	c.detachLifecycle()

	unsub := notifier.Subscribe(func(app lifecycle.AppState) {
		c.onAppState(app)
	})

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		unsub()
		return
	}
	c.lifecycleUnsub = unsub
	c.mu.Unlock()

	slog.Debug("lifecycle observer attached")
}

func (c *Controller) detachLifecycle() {
	c.mu.Lock()
	unsub := c.lifecycleUnsub
	c.lifecycleUnsub = nil
	c.resumeOnForeground = false
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) onAppState(app lifecycle.AppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.handle == nil {
		return
	}

	switch app {
	case lifecycle.Background:
		if c.cfg != nil && c.cfg.PlayInBackground {
			slog.Debug("background transition ignored, playing in background")
			return
		}
		if !c.store.Current().IsPlaying {
			return
		}
		slog.Debug("pausing for background transition")
		if err := c.pauseLocked(); err != nil {
			slog.Warn("lifecycle pause failed", "error", err)
			return
		}
		c.resumeOnForeground = true

	case lifecycle.Foreground:
		if !c.resumeOnForeground {
			return
		}
		c.resumeOnForeground = false
		slog.Debug("resuming after foreground transition")
		if err := c.playLocked(); err != nil {
			slog.Warn("lifecycle resume failed", "error", err)
		}
	}
}
