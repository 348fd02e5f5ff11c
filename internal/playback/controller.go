package playback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"playsync.dev/internal/captions"
	"playsync.dev/internal/config"
	"playsync.dev/internal/engine"
	"playsync.dev/internal/state"
	"playsync.dev/internal/tracks"
)

// Controller binds one engine session to one observable snapshot of
// playback state. Engine callbacks, the position poller, and user
// commands all funnel into the single serialized mutation point of the
// state store; engine-directed commands are serialized through the
// controller mutex so no two call sites mutate engine properties
// concurrently.
//
// A Controller owns its EngineHandle exclusively. Dispose is idempotent
// and every command on a disposed controller is a safe no-op.
type Controller struct {
	store    *state.Store
	factory  engine.Factory
	registry engine.SurfaceRegistry

	// mu serializes engine-directed commands and guards the mutable
	// fields below. Never held while waiting on the translator or
	// poller goroutines.
	mu            sync.Mutex
	disposed      bool
	cfg           *config.Config
	handle        *engineHandle
	meta          engine.StreamMetadata
	seenLoaded    bool
	playRequested bool

	// Translator funnel. Engine callbacks push here; one goroutine
	// drains in arrival order.
	events          chan engineEvent
	translatorQuit  chan struct{}
	translatorDone  chan struct{}
	removeCallbacks []func()

	// Position poller.
	pollStop chan struct{}
	pollDone chan struct{}

	// seekGen increments on every dispatched seek. Poll samples taken
	// under an older generation are discarded so a stale in-flight
	// sample never overwrites a seek result.
	seekGen atomic.Int64

	// Caption cues live outside the snapshot; the active caption text
	// is recomputed into each position transition.
	capMu sync.RWMutex
	cues  captions.List

	// Lifecycle binding.
	lifecycleUnsub     func()
	resumeOnForeground bool

	// In-flight initialization bookkeeping.
	initMu     sync.Mutex
	initCancel context.CancelFunc
	initDone   chan struct{}
}

// New creates a controller that allocates sessions from factory and
// presents surfaces through registry.
func New(factory engine.Factory, registry engine.SurfaceRegistry) *Controller {
	slog.Debug("creating playback controller")
	return &Controller{
		store:    state.NewStore(),
		factory:  factory,
		registry: registry,
	}
}

// Snapshot returns the current playback state.
func (c *Controller) Snapshot() state.Snapshot {
	return c.store.Current()
}

// Subscribe registers a snapshot observer and returns its unsubscribe
// function. Observers run inside the store's serialization point and
// must not call back into the controller.
func (c *Controller) Subscribe(fn func(state.Snapshot)) (unsubscribe func()) {
	return c.store.Subscribe(state.Observer(fn))
}

// RenderTarget returns the renderable handle for the current session,
// if one is initialized.
func (c *Controller) RenderTarget() (engine.RenderTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return engine.RenderTarget{}, false
	}
	return c.handle.target, true
}

// Play starts playback. Issued before initialization completes, the
// play intent is remembered and auto-applied once the session is ready.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playLocked()
}

func (c *Controller) playLocked() error {
	if c.disposed {
		return nil
	}
	if c.handle == nil {
		slog.Debug("play requested before initialization, deferring")
		c.playRequested = true
		return nil
	}

	// Restart from the beginning when playback already completed.
	if c.store.Current().IsCompleted {
		if err := c.handle.session.Seek(context.Background(), 0, engine.SeekAccurate); err != nil {
			slog.Warn("failed to rewind completed session", "error", err)
		}
		c.seekGen.Add(1)
	}

	if err := c.handle.session.SetPlayState(engine.StatePlaying); err != nil {
		return &PlatformError{Op: "play", Err: err}
	}

	c.applyPlayingLocked(true)
	c.startPollerLocked()
	return nil
}

// Pause halts playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() error {
	if c.disposed {
		return nil
	}
	if c.handle == nil {
		c.playRequested = false
		return nil
	}

	if err := c.handle.session.SetPlayState(engine.StatePaused); err != nil {
		return &PlatformError{Op: "pause", Err: err}
	}

	c.applyPlayingLocked(false)
	c.stopPollerLocked()
	return nil
}

// applyPlayingLocked records a play-state change. Transitioning into
// playing clears the completed flag.
func (c *Controller) applyPlayingLocked(playing bool) {
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.IsPlaying = playing
		if playing {
			s.IsCompleted = false
		}
		return s
	})
}

// SetVolume sets the output volume in [0.0, 1.0].
func (c *Controller) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return &ArgumentError{Name: "volume", Reason: "must be between 0.0 and 1.0"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}

	if c.handle != nil {
		if err := c.handle.session.SetVolume(volume); err != nil {
			return &PlatformError{Op: "set volume", Err: err}
		}
	}

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.Volume = volume
		return s
	})
	return nil
}

// SetPlaybackSpeed sets the speed multiplier; it must be positive.
func (c *Controller) SetPlaybackSpeed(speed float64) error {
	if speed <= 0.0 {
		return &ArgumentError{Name: "playback speed", Reason: "must be positive"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}

	if c.handle != nil {
		if err := c.handle.session.SetRate(speed); err != nil {
			return &PlatformError{Op: "set playback speed", Err: err}
		}
	}

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.PlaybackSpeed = speed
		return s
	})
	return nil
}

// SetLooping toggles looping at end of media.
func (c *Controller) SetLooping(looping bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}

	if c.handle != nil {
		if err := c.handle.session.SetLoop(looping); err != nil {
			return &PlatformError{Op: "set looping", Err: err}
		}
	}

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.IsLooping = looping
		return s
	})
	return nil
}

// GetTracks returns the resolved descriptors of the given type.
func (c *Controller) GetTracks(kind tracks.Type) []tracks.Descriptor {
	snap := c.store.Current()

	var result []tracks.Descriptor
	for _, desc := range snap.Tracks {
		if desc.Type == kind {
			result = append(result, desc)
		}
	}
	return result
}

// SetActiveTrack selects the track of the given type, or deselects with
// state.NoneTrack.
func (c *Controller) SetActiveTrack(kind tracks.Type, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	if c.handle == nil {
		return ErrNotInitialized
	}

	var ids []int
	if id != state.NoneTrack {
		ids = []int{id}
	}
	if err := c.handle.session.SetActiveTracks(kind, ids); err != nil {
		return &PlatformError{Op: "set active track", Err: err}
	}

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		switch kind {
		case tracks.TypeVideo:
			s.ActiveVideoTrack = id
		case tracks.TypeAudio:
			s.ActiveAudioTrack = id
		case tracks.TypeSubtitle:
			s.ActiveSubtitleTrack = id
		}
		updated := make([]tracks.Descriptor, len(s.Tracks))
		copy(updated, s.Tracks)
		for i := range updated {
			if updated[i].Type == kind {
				updated[i].Selected = updated[i].ID == id
			}
		}
		s.Tracks = updated
		return s
	})

	slog.Debug("active track changed", "track_type", kind.String(), "track_id", id)
	return nil
}

// SetCaptions installs the cue list used to resolve the active caption.
func (c *Controller) SetCaptions(cues captions.List) {
	c.capMu.Lock()
	c.cues = cues
	c.capMu.Unlock()

	c.refreshCaption()
	slog.Debug("caption cues installed", "cues", len(cues))
}

// SetCaptionOffset shifts caption lookup by the given amount; the
// lookup position is playback position plus offset.
func (c *Controller) SetCaptionOffset(offset time.Duration) {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return
	}

	cues := c.currentCues()
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.CaptionOffset = offset
		s.Caption = cues.At(s.Position + offset)
		return s
	})
}

// refreshCaption recomputes the active caption at the current position.
func (c *Controller) refreshCaption() {
	cues := c.currentCues()
	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.Caption = cues.At(s.Position + s.CaptionOffset)
		return s
	})
}

func (c *Controller) currentCues() captions.List {
	c.capMu.RLock()
	defer c.capMu.RUnlock()
	return c.cues
}

// Dispose cancels any in-flight initialization, stops the translator
// and poller, releases the engine handle exactly once, and freezes the
// store. Safe to call more than once; never returns an error.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		slog.Debug("controller already disposed")
		return
	}
	c.disposed = true
	c.mu.Unlock()

	slog.Debug("disposing playback controller")

	// Cancel and wait out any in-flight initialization so its partial
	// resources are released before we tear down.
	c.initMu.Lock()
	if c.initCancel != nil {
		c.initCancel()
	}
	done := c.initDone
	c.initMu.Unlock()
	if done != nil {
		<-done
	}

	c.detachLifecycle()
	c.teardownRuntime()
	c.store.Dispose()

	slog.Info("playback controller disposed")
}

// teardownRuntime stops the translator and poller and releases the
// engine handle. Called from Dispose and from re-initialization.
func (c *Controller) teardownRuntime() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	removes := c.removeCallbacks
	c.removeCallbacks = nil
	quit := c.translatorQuit
	translatorDone := c.translatorDone
	c.translatorQuit = nil
	c.translatorDone = nil
	c.events = nil
	c.seenLoaded = false
	c.meta = engine.StreamMetadata{}
	pollDone := c.stopPollerLocked()
	c.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	if quit != nil {
		close(quit)
		<-translatorDone
	}
	if pollDone != nil {
		<-pollDone
	}
	if handle != nil {
		handle.release()
	}
}
