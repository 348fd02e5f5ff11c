package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"playsync.dev/internal/config"
	"playsync.dev/internal/engine"
	"playsync.dev/internal/state"
	"playsync.dev/internal/tracks"
)

// Initialize opens uri and brings the controller from uninitialized to
// ready. Calling Initialize while a previous session exists replaces
// it: any in-flight initialization is cancelled and awaited first, the
// old session is torn down, and the snapshot resets before the new
// pipeline starts. At most one session is ever live per controller.
func (c *Controller) Initialize(ctx context.Context, uri string, cfg *config.Config) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.mu.Unlock()

	manager := config.NewManager()
	if cfg == nil {
		cfg = manager.GetDefaultConfig()
	}
	if err := manager.ValidateConfig(cfg); err != nil {
		return err
	}

	// Replace any in-flight initialization. The previous pipeline is
	// cancelled and fully awaited so its resources cannot leak past
	// this point.
	initCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.initMu.Lock()
	if c.initCancel != nil {
		c.initCancel()
	}
	prevDone := c.initDone
	c.initCancel = cancel
	c.initDone = done
	c.initMu.Unlock()
	if prevDone != nil {
		<-prevDone
	}
	defer func() {
		cancel()
		close(done)
		c.initMu.Lock()
		if c.initDone == done {
			c.initCancel = nil
			c.initDone = nil
		}
		c.initMu.Unlock()
	}()

	// Tear down the previous session and reset the snapshot so
	// observers see a clean slate before the new media loads.
	c.teardownRuntime()
	c.resetStore(cfg)

	slog.Info("initializing playback session", "uri", uri, "engine", cfg.Engine)

	err := c.runInitPipeline(initCtx, uri, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("initialization cancelled", "uri", uri)
			return err
		}
		slog.Error("initialization failed", "uri", uri, "error", err)
		c.store.Apply(func(s state.Snapshot) state.Snapshot {
			s.ErrorDescription = err.Error()
			return s
		})
		return err
	}

	slog.Info("playback session initialized", "uri", uri)
	return nil
}

// resetStore restores the pre-initialization snapshot while carrying
// forward the values the caller configured up front.
func (c *Controller) resetStore(cfg *config.Config) {
	c.store.Apply(func(state.Snapshot) state.Snapshot {
		fresh := state.New()
		fresh.Volume = cfg.Volume
		fresh.PlaybackSpeed = cfg.PlaybackSpeed
		fresh.IsLooping = cfg.Looping
		return fresh
	})
}

// runInitPipeline executes the acquire stages. Every acquired resource
// is registered on a teardown stack that unwinds in reverse order on
// failure and commits on success.
func (c *Controller) runInitPipeline(ctx context.Context, uri string, cfg *config.Config) error {
	if len(cfg.PlatformAllowList) > 0 {
		platform := c.factory.Platform()
		if !engine.PlatformAllowed(cfg.PlatformAllowList, platform) {
			return &PlatformError{
				Op:  "initialize",
				Err: fmt.Errorf("platform %q not in allow list %v", platform, cfg.PlatformAllowList),
			}
		}
	}

	var guards teardownStack
	defer guards.unwind()

	session, err := c.factory.CreateSession(cfg.Engine)
	if err != nil {
		return &MediaOpenError{URI: uri, Err: err}
	}
	guards.push(func() {
		if cerr := session.Close(); cerr != nil {
			slog.Warn("failed to close session during unwind", "error", cerr)
		}
	})

	c.applySessionProperties(session, cfg)

	if err := session.Open(ctx, uri, cfg.Headers, cfg.Protocols); err != nil {
		return &MediaOpenError{URI: uri, Err: err}
	}

	status, err := session.Prepare(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &MediaOpenError{URI: uri, Err: err}
	}
	if status != engine.StatusLoaded {
		return &MediaOpenError{URI: uri, Err: fmt.Errorf("media failed to load, status %s", status)}
	}

	// Metadata probing and surface allocation are independent; run
	// them concurrently and release whichever succeeded if the other
	// fails.
	var meta engine.StreamMetadata
	// Start below zero so a failed allocation never reads as surface 0,
	// which another controller on the same registry may own.
	surface := engine.SurfaceID(-1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := session.StreamMetadata(gctx)
		if err != nil {
			return &MediaOpenError{URI: uri, Err: err}
		}
		meta = m
		return nil
	})
	g.Go(func() error {
		id, err := session.AllocateSurface(gctx, engine.SurfaceOptions{
			MaxWidth:  cfg.MaxSurfaceWidth,
			MaxHeight: cfg.MaxSurfaceHeight,
		})
		if err != nil {
			return &MediaOpenError{URI: uri, Err: err}
		}
		if !id.Valid() {
			return &InvalidVideoSizeError{URI: uri, Surface: id}
		}
		surface = id
		return nil
	})
	if err := g.Wait(); err != nil {
		if surface.Valid() {
			if rerr := c.registry.ReleaseSurface(surface); rerr != nil {
				slog.Warn("failed to release surface during unwind", "surface", int64(surface), "error", rerr)
			}
		}
		return err
	}
	guards.push(func() {
		if rerr := c.registry.ReleaseSurface(surface); rerr != nil {
			slog.Warn("failed to release surface during unwind", "surface", int64(surface), "error", rerr)
		}
	})

	target, err := c.registry.PresentSurface(surface)
	if err != nil {
		return &MediaOpenError{URI: uri, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	guards.commit()
	return c.activateSession(session, surface, target, meta, cfg)
}

// applySessionProperties forwards the engine tuning options that take
// effect before Open.
func (c *Controller) applySessionProperties(session engine.Session, cfg *config.Config) {
	if len(cfg.DecoderPreference) > 0 {
		session.SetProperty("decoder-preference", strings.Join(cfg.DecoderPreference, ","))
	}
	if cfg.LowLatency > 0 {
		session.SetProperty("low-latency", fmt.Sprintf("%d", cfg.LowLatency))
	}
	if cfg.MixWithOthers {
		session.SetProperty("mix-with-others", "1")
	}
	for name, value := range cfg.Properties {
		session.SetProperty(name, value)
	}
}

// activateSession installs the acquired resources, wires the event
// translator, publishes the initialized snapshot, and replays the
// configured and remembered intents onto the new session.
func (c *Controller) activateSession(session engine.Session, surface engine.SurfaceID, target engine.RenderTarget, meta engine.StreamMetadata, cfg *config.Config) error {
	descriptors, activeVideo, activeAudio, activeSubtitle := resolveTracks(meta, cfg.TrackNameSeparator)

	var width, height int
	if len(meta.Video) > 0 {
		primary := meta.Video[0]
		width, height = primary.Width, primary.Height
		if primary.Rotation == 90 || primary.Rotation == 270 {
			width, height = height, width
		}
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		if err := c.registry.ReleaseSurface(surface); err != nil {
			slog.Warn("failed to release surface after dispose", "error", err)
		}
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session after dispose", "error", err)
		}
		return ErrDisposed
	}

	c.handle = &engineHandle{session: session, surface: surface, registry: c.registry, target: target}
	c.meta = meta
	c.cfg = cfg
	c.seenLoaded = true

	c.events = make(chan engineEvent, eventQueueSize)
	c.translatorQuit = make(chan struct{})
	c.translatorDone = make(chan struct{})
	c.registerCallbacksLocked(session)
	go c.drainEvents(c.events, c.translatorQuit, c.translatorDone)

	playRequested := c.playRequested
	c.playRequested = false
	c.mu.Unlock()

	c.store.Apply(func(s state.Snapshot) state.Snapshot {
		s.IsInitialized = true
		s.ErrorDescription = ""
		s.Duration = meta.Duration
		s.IsLive = meta.Live
		s.FrameSize = state.Size{Width: width, Height: height}
		if len(meta.Video) > 0 {
			s.RotationCorrection = meta.Video[0].Rotation
		}
		s.Tracks = descriptors
		s.ActiveVideoTrack = activeVideo
		s.ActiveAudioTrack = activeAudio
		s.ActiveSubtitleTrack = activeSubtitle
		return s
	})

	c.replayIntents(session)

	if playRequested || cfg.AutoPlay {
		if err := c.Play(); err != nil {
			slog.Warn("auto-play failed", "error", err)
		}
	}
	return nil
}

// replayIntents pushes the configured volume, speed, and looping onto
// the fresh session so the snapshot and the engine agree.
func (c *Controller) replayIntents(session engine.Session) {
	snap := c.store.Current()
	if err := session.SetVolume(snap.Volume); err != nil {
		slog.Warn("failed to apply volume", "error", err)
	}
	if err := session.SetRate(snap.PlaybackSpeed); err != nil {
		slog.Warn("failed to apply playback speed", "error", err)
	}
	if err := session.SetLoop(snap.IsLooping); err != nil {
		slog.Warn("failed to apply looping", "error", err)
	}
}

// resolveTracks builds display descriptors for every stream in meta.
// The first stream of each type starts selected, mirroring engine
// defaults.
func resolveTracks(meta engine.StreamMetadata, separator string) (descriptors []tracks.Descriptor, video, audio, subtitle int) {
	video, audio, subtitle = state.NoneTrack, state.NoneTrack, state.NoneTrack

	for i, v := range meta.Video {
		src := tracks.Source{
			ID:      v.ID,
			Width:   v.Width,
			Height:  v.Height,
			Bitrate: v.Bitrate,
		}
		selected := i == 0
		if selected {
			video = v.ID
		}
		descriptors = append(descriptors, tracks.Resolve(tracks.TypeVideo, src, selected, separator))
	}
	for i, a := range meta.Audio {
		src := tracks.Source{
			ID:           a.ID,
			Language:     a.Language,
			Label:        a.Label,
			ChannelCount: a.Channels,
			Bitrate:      a.Bitrate,
		}
		selected := i == 0
		if selected {
			audio = a.ID
		}
		descriptors = append(descriptors, tracks.Resolve(tracks.TypeAudio, src, selected, separator))
	}
	for i, s := range meta.Subtitle {
		src := tracks.Source{
			ID:       s.ID,
			Language: s.Language,
			Label:    s.Label,
		}
		selected := i == 0
		if selected {
			subtitle = s.ID
		}
		descriptors = append(descriptors, tracks.Resolve(tracks.TypeSubtitle, src, selected, separator))
	}
	return descriptors, video, audio, subtitle
}
