package playback

import (
	"context"
	"log/slog"
	"time"

	"playsync.dev/internal/engine"
	"playsync.dev/internal/state"
)

// eventQueueSize bounds the translator funnel. Engine callbacks can
// fire synchronously from inside a controller command, so the push side
// must never block; overflow events are dropped with a warning instead.
const eventQueueSize = 256

type eventKind int

const (
	evStatus eventKind = iota
	evState
	evGeneric
)

// engineEvent is one raw engine notification queued for translation.
type engineEvent struct {
	kind   eventKind
	status engine.MediaStatus
	state  engine.PlayState
	event  engine.Event
}

// registerCallbacksLocked wires the session's callbacks into the event
// funnel. Caller holds c.mu.
func (c *Controller) registerCallbacksLocked(session engine.Session) {
	events := c.events
	c.removeCallbacks = []func(){
		session.OnMediaStatus(func(_, status engine.MediaStatus) {
			c.pushEvent(events, engineEvent{kind: evStatus, status: status})
		}),
		session.OnStateChanged(func(ps engine.PlayState) {
			c.pushEvent(events, engineEvent{kind: evState, state: ps})
		}),
		session.OnEvent(func(ev engine.Event) {
			c.pushEvent(events, engineEvent{kind: evGeneric, event: ev})
		}),
	}
}

// pushEvent enqueues without blocking. Callbacks may fire while a
// command holds the controller mutex; blocking here would deadlock
// against the drain goroutine.
func (c *Controller) pushEvent(events chan engineEvent, ev engineEvent) {
	select {
	case events <- ev:
	default:
		slog.Warn("engine event queue full, dropping event", "kind", int(ev.kind))
	}
}

// drainEvents translates raw engine notifications into snapshot
// transitions, in arrival order, on a single goroutine.
func (c *Controller) drainEvents(events chan engineEvent, quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case ev := <-events:
			c.translate(ev)
		}
	}
}

func (c *Controller) translate(ev engineEvent) {
	switch ev.kind {
	case evStatus:
		c.translateStatus(ev.status)
	case evState:
		c.translateState(ev.state)
	case evGeneric:
		c.translateEvent(ev.event)
	}
}

func (c *Controller) translateStatus(status engine.MediaStatus) {
	slog.Debug("media status changed", "status", status.String())

	switch status {
	case engine.StatusLoaded:
		// Loaded is already absorbed by the initialization pipeline;
		// a repeat notification must not retrigger readiness.
		c.mu.Lock()
		seen := c.seenLoaded
		c.seenLoaded = true
		c.mu.Unlock()
		if seen {
			return
		}
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.IsInitialized = true
			return s
		})

	case engine.StatusBuffering:
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.IsBuffering = true
			return s
		})

	case engine.StatusBuffered:
		buffered := c.sampleBufferedLength()
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.IsBuffering = false
			if buffered > 0 {
				s.Buffered = state.MergeBuffered(s.Buffered, state.TimeRange{
					Start: s.Position,
					End:   s.Position + buffered,
				})
			}
			return s
		})

	case engine.StatusInvalid:
		// A mid-stream decode failure surfaces as an error description
		// without dropping readiness; the session stays attached so the
		// caller can inspect and dispose.
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.ErrorDescription = "media became invalid during playback"
			return s
		})
	}
}

func (c *Controller) translateState(ps engine.PlayState) {
	slog.Debug("engine play state changed", "state", ps.String())

	switch ps {
	case engine.StatePlaying:
		c.applyPlayingFromEngine(true)
		c.mu.Lock()
		c.startPollerLocked()
		c.mu.Unlock()

	case engine.StatePaused:
		c.applyPlayingFromEngine(false)
		c.mu.Lock()
		pollDone := c.stopPollerLocked()
		c.mu.Unlock()
		if pollDone != nil {
			<-pollDone
		}

	case engine.StateStopped:
		c.handleCompletion()
	}
}

func (c *Controller) applyPlayingFromEngine(playing bool) {
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.IsPlaying = playing
		if playing {
			s.IsCompleted = false
		}
		return s
	})
}

// handleCompletion translates the engine's natural stop into the
// completed snapshot. The engine is explicitly paused and parked at the
// end so a later play restarts cleanly instead of racing a stopped
// pipeline.
func (c *Controller) handleCompletion() {
	c.mu.Lock()
	if c.disposed || c.handle == nil {
		c.mu.Unlock()
		return
	}
	session := c.handle.session
	duration := c.meta.Duration
	pollDone := c.stopPollerLocked()
	c.mu.Unlock()
	if pollDone != nil {
		<-pollDone
	}

	if err := session.SetPlayState(engine.StatePaused); err != nil {
		slog.Debug("pause after completion failed", "error", err)
	}
	if duration > 0 {
		if err := session.Seek(context.Background(), duration, engine.SeekAccurate); err != nil {
			slog.Debug("seek to end after completion failed", "error", err)
		}
	}
	c.seekGen.Add(1)

	cues := c.currentCues()
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.IsPlaying = false
		s.IsCompleted = true
		if duration > 0 {
			s.Position = duration
		}
		s.Caption = cues.At(s.Position + s.CaptionOffset)
		return s
	})

	slog.Info("playback completed", "duration", duration)
}

func (c *Controller) translateEvent(ev engine.Event) {
	switch ev.Category {
	case engine.EventReaderBuffering:
		buffered := c.sampleBufferedLength()
		if buffered <= 0 {
			return
		}
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.Buffered = state.MergeBuffered(s.Buffered, state.TimeRange{
				Start: s.Position,
				End:   s.Position + buffered,
			})
			return s
		})
	default:
		slog.Debug("unhandled engine event", "category", ev.Category, "detail", ev.Detail)
	}
}

// sampleBufferedLength asks the engine how far ahead of the current
// position data is available.
func (c *Controller) sampleBufferedLength() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return 0
	}
	return c.handle.session.BufferedLength()
}
