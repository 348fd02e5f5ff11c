package playback

import (
	"context"
	"log/slog"
	"time"

	"playsync.dev/internal/engine"
	"playsync.dev/internal/state"
)

// SeekTo moves playback to target. Targets outside the seekable range
// are clamped for bounded media; for live sessions a target outside the
// currently buffered window is ignored. The snapshot position updates
// immediately so observers see the seek result without waiting for the
// next poll sample.
func (c *Controller) SeekTo(target time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	if c.handle == nil {
		return ErrNotInitialized
	}

	session := c.handle.session
	duration := c.meta.Duration

	if c.meta.Live {
		// Live sessions only seek inside the buffered window.
		position := session.Position()
		buffered := session.BufferedLength()
		if target < position || target > position+buffered {
			slog.Debug("live seek outside buffered window ignored",
				"target", target, "window_start", position, "window_end", position+buffered)
			return nil
		}
	} else {
		if target < 0 {
			target = 0
		}
		if duration > 0 && target > duration {
			target = duration
		}
	}

	flags := engine.SeekAccurate
	if c.cfg != nil && c.cfg.FastSeek {
		flags = engine.SeekKeyFrame
	}

	// Bump the generation before dispatch so any poll sample already in
	// flight is discarded rather than overwriting the seek target.
	c.seekGen.Add(1)

	if err := session.Seek(context.Background(), target, flags); err != nil {
		return &PlatformError{Op: "seek", Err: err}
	}

	c.applySeekResult(target, duration)
	slog.Debug("seek dispatched", "target", target, "fast", flags == engine.SeekKeyFrame)
	return nil
}

// StepFrames advances playback by count frames relative to the current
// position; negative counts step backwards. Stepping pauses playback
// first, frame stepping on a running pipeline is undefined.
func (c *Controller) StepFrames(count int) error {
	if count == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	if c.handle == nil {
		return ErrNotInitialized
	}

	session := c.handle.session

	if c.store.Current().IsPlaying {
		if err := session.SetPlayState(engine.StatePaused); err != nil {
			return &PlatformError{Op: "step frames", Err: err}
		}
		c.applyPlayingLocked(false)
		done := c.stopPollerLocked()
		if done != nil {
			defer func() { <-done }()
		}
	}

	c.seekGen.Add(1)

	if err := session.Seek(context.Background(), time.Duration(count), engine.SeekFrame|engine.SeekFromNow); err != nil {
		return &PlatformError{Op: "step frames", Err: err}
	}

	position := session.Position()
	cues := c.currentCues()
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.Position = position
		s.Caption = cues.At(position + s.CaptionOffset)
		return s
	})

	slog.Debug("frame step dispatched", "frames", count, "position", position)
	return nil
}

// applySeekResult publishes the seek target as the new position. Caller
// holds c.mu.
func (c *Controller) applySeekResult(target, duration time.Duration) {
	cues := c.currentCues()
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.Position = target
		s.Caption = cues.At(target + s.CaptionOffset)
		if duration > 0 && target < duration {
			s.IsCompleted = false
		}
		return s
	})
}
