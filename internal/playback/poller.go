package playback

import (
	"log/slog"
	"time"

	"playsync.dev/internal/engine"
	"playsync.dev/internal/state"
)

// startPollerLocked launches the position sampling loop. Caller holds
// c.mu. Starting while a poller is already running is a no-op.
func (c *Controller) startPollerLocked() {
	if c.pollStop != nil || c.handle == nil {
		return
	}

	interval := c.cfg.PollInterval()
	session := c.handle.session
	stop := make(chan struct{})
	done := make(chan struct{})
	c.pollStop = stop
	c.pollDone = done

	slog.Debug("starting position poller", "interval", interval)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.samplePosition(session)
			}
		}
	}()
}

// stopPollerLocked signals the poller to exit and returns its done
// channel, or nil when no poller is running. Caller holds c.mu; the
// poller never acquires it, so waiting on the channel is safe either
// way.
func (c *Controller) stopPollerLocked() chan struct{} {
	if c.pollStop == nil {
		return nil
	}
	close(c.pollStop)
	done := c.pollDone
	c.pollStop = nil
	c.pollDone = nil
	slog.Debug("position poller stopped")
	return done
}

// samplePosition reads the engine clock and folds it into the snapshot.
// The seek generation is captured before sampling; if a seek lands
// while the sample is in flight the stale sample is discarded so the
// observed position never jumps backwards past a seek target.
func (c *Controller) samplePosition(session engine.Session) {
	gen := c.seekGen.Load()
	position := session.Position()
	buffered := session.BufferedLength()
	cues := c.currentCues()

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		if c.seekGen.Load() != gen {
			return s
		}
		if !s.IsPlaying {
			return s
		}
		s.Position = position
		if buffered > 0 {
			s.Buffered = state.MergeBuffered(s.Buffered, state.TimeRange{
				Start: position,
				End:   position + buffered,
			})
		}
		s.Caption = cues.At(position + s.CaptionOffset)
		return s
	})
}
