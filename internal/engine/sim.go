package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"playsync.dev/internal/tracks"
)

// SimSession is a clock-driven Session implementation. It decodes
// nothing: position advances in wall-clock time scaled by the playback
// rate, and status/state callbacks fire the way a native engine reports
// them. It opens local media files (content-sniffed) and synthetic
// "sim://" URIs whose query parameters shape the session:
//
//	sim://clip?duration=10s&width=1280&height=720&rotation=90
//	sim://feed?live=1&buffered=5s
//	sim://broken?failopen=1        open fails
//	sim://broken?failprepare=1     prepare reports invalid media
//	sim://broken?badsurface=1      surface allocation returns -1
//	sim://slow?preparedelay=200ms  prepare blocks (cancellation tests)
type SimSession struct {
	fs       afero.Fs
	registry *SimSurfaceRegistry

	mu           sync.Mutex
	closed       bool
	opened       bool
	prepared     bool
	uri          string
	params       url.Values
	status       MediaStatus
	state        PlayState
	meta         StreamMetadata
	basePos      time.Duration
	anchor       time.Time
	rate         float64
	loop         bool
	volume       float64
	bufferAhead  time.Duration
	prepareDelay time.Duration
	properties   map[string]string

	watcherStop chan struct{}
	watcherDone chan struct{}

	nextCallbackID int
	statusFns      map[int]func(old, new MediaStatus)
	eventFns       map[int]func(Event)
	stateFns       map[int]func(PlayState)
}

// NewSimSession creates an unopened sim session that allocates surfaces
// from the given registry.
func NewSimSession(fs afero.Fs, registry *SimSurfaceRegistry) *SimSession {
	return &SimSession{
		fs:          fs,
		registry:    registry,
		rate:        1.0,
		volume:      1.0,
		bufferAhead: 3 * time.Second,
		properties:  make(map[string]string),
		statusFns:   make(map[int]func(old, new MediaStatus)),
		eventFns:    make(map[int]func(Event)),
		stateFns:    make(map[int]func(PlayState)),
	}
}

// Open binds the session to a URI. Local files must exist and sniff as
// audio or video content; sim URIs accept the parameters documented on
// SimSession.
func (s *SimSession) Open(ctx context.Context, uri string, headers map[string]string, protocols []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	slog.Debug("sim engine opening media",
		"uri", uri,
		"headers", len(headers),
		"protocols", protocols)

	scheme := uriScheme(uri)
	if len(protocols) > 0 && !protocolAllowed(scheme, protocols) {
		return fmt.Errorf("scheme %q not in protocol allow-list: %w", scheme, ErrOpenFailed)
	}

	switch scheme {
	case "sim":
		parsed, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid sim uri %q: %w", uri, ErrOpenFailed)
		}
		s.params = parsed.Query()
		if s.params.Get("failopen") != "" {
			return fmt.Errorf("simulated open failure for %q: %w", uri, ErrOpenFailed)
		}
	case "", "file":
		path := strings.TrimPrefix(uri, "file://")
		if err := s.sniffLocalFile(path); err != nil {
			return err
		}
		s.params = url.Values{}
	default:
		return fmt.Errorf("unsupported scheme %q: %w", scheme, ErrOpenFailed)
	}

	s.uri = uri
	s.opened = true
	s.prepareDelay = paramDuration(s.params, "preparedelay", 0)
	s.bufferAhead = paramDuration(s.params, "buffered", s.bufferAhead)

	slog.Info("sim engine media opened", "uri", uri)
	return nil
}

// sniffLocalFile verifies the file exists and carries media content.
func (s *SimSession) sniffLocalFile(path string) error {
	file, err := s.fs.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", path, ErrOpenFailed)
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("cannot sniff %q: %w", path, ErrOpenFailed)
	}

	kind := mtype.String()
	if !strings.HasPrefix(kind, "video/") && !strings.HasPrefix(kind, "audio/") {
		return fmt.Errorf("%q is %s, not media content: %w", path, kind, ErrOpenFailed)
	}

	slog.Debug("local media sniffed", "path", path, "mime_type", kind)
	return nil
}

// Prepare resolves the stream, firing loading and loaded status
// transitions the way a native engine does.
func (s *SimSession) Prepare(ctx context.Context) (MediaStatus, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StatusInvalid, ErrSessionClosed
	}
	if !s.opened {
		s.mu.Unlock()
		return StatusInvalid, ErrNotOpen
	}
	delay := s.prepareDelay
	failPrepare := s.params.Get("failprepare") != ""
	s.mu.Unlock()

	s.setStatus(StatusLoading)

	if delay > 0 {
		select {
		case <-ctx.Done():
			return StatusInvalid, ctx.Err()
		case <-time.After(delay):
		}
	} else if err := ctx.Err(); err != nil {
		return StatusInvalid, err
	}

	if failPrepare {
		s.setStatus(StatusInvalid)
		return StatusInvalid, nil
	}

	s.mu.Lock()
	s.meta = s.buildMetadata()
	s.prepared = true
	s.mu.Unlock()

	s.setStatus(StatusLoaded)
	s.emit(Event{Category: EventReaderBuffering})

	return StatusLoaded, nil
}

// buildMetadata shapes the stream layout from the sim parameters.
// Callers hold s.mu.
func (s *SimSession) buildMetadata() StreamMetadata {
	live := s.params.Get("live") != ""

	duration := paramDuration(s.params, "duration", 10*time.Second)
	if live {
		duration = 0
	}

	width := paramInt(s.params, "width", 1280)
	height := paramInt(s.params, "height", 720)
	rotation := paramInt(s.params, "rotation", 0)
	bitrate := int64(paramInt(s.params, "bitrate", 1_200_000))

	return StreamMetadata{
		Duration: duration,
		Live:     live,
		Video: []VideoStream{
			{ID: 0, Width: width, Height: height, Rotation: rotation, Bitrate: bitrate, FrameRate: 25, Codec: "sim"},
		},
		Audio: []AudioStream{
			{ID: 0, Language: "und", Channels: 2, Bitrate: 128_000, SampleRate: 48000, Codec: "sim"},
		},
		Subtitle: nil,
	}
}

// AllocateSurface creates the render surface, honoring the configured
// maximum dimensions.
func (s *SimSession) AllocateSurface(ctx context.Context, opts SurfaceOptions) (SurfaceID, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return -1, ErrSessionClosed
	}
	if !s.prepared {
		s.mu.Unlock()
		return -1, ErrNotOpen
	}
	bad := s.params.Get("badsurface") != ""
	width, height := 0, 0
	if len(s.meta.Video) > 0 {
		width, height = s.meta.Video[0].Width, s.meta.Video[0].Height
	}
	s.mu.Unlock()

	if bad {
		slog.Warn("sim engine simulating surface allocation failure", "uri", s.uri)
		return -1, nil
	}

	if opts.MaxWidth > 0 && width > opts.MaxWidth {
		width = opts.MaxWidth
	}
	if opts.MaxHeight > 0 && height > opts.MaxHeight {
		height = opts.MaxHeight
	}

	id := s.registry.Register(width, height)
	slog.Debug("sim engine surface allocated",
		"surface_id", id,
		"width", width,
		"height", height,
		"tunnel", opts.TunnelHint)
	return id, nil
}

// SetProperty records an opaque engine property.
func (s *SimSession) SetProperty(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.properties[key] = value
	slog.Debug("sim engine property set", "key", key, "value", value)
}

// Property returns a previously set property, for tests and diagnostics.
func (s *SimSession) Property(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.properties[key]
}

// Position returns the current playback position.
func (s *SimSession) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *SimSession) positionLocked() time.Duration {
	pos := s.basePos
	if s.state == StatePlaying {
		pos += time.Duration(float64(time.Since(s.anchor)) * s.rate)
	}
	if !s.meta.Live && s.meta.Duration > 0 && pos > s.meta.Duration {
		pos = s.meta.Duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// BufferedLength reports the simulated read-ahead window.
func (s *SimSession) BufferedLength() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.Live {
		return s.bufferAhead
	}
	remaining := s.meta.Duration - s.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	if remaining < s.bufferAhead {
		return remaining
	}
	return s.bufferAhead
}

// Seek moves the playback position according to the flags.
func (s *SimSession) Seek(ctx context.Context, target time.Duration, flags SeekFlag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.prepared {
		return ErrNotOpen
	}

	pos := s.positionLocked()
	switch {
	case flags&SeekFrame != 0:
		fps := 25.0
		if len(s.meta.Video) > 0 && s.meta.Video[0].FrameRate > 0 {
			fps = s.meta.Video[0].FrameRate
		}
		frames := int64(target)
		pos += time.Duration(float64(frames) / fps * float64(time.Second))
	case flags&SeekFromNow != 0:
		pos += target
	default:
		pos = target
	}

	if pos < 0 {
		pos = 0
	}
	if !s.meta.Live && s.meta.Duration > 0 && pos > s.meta.Duration {
		pos = s.meta.Duration
	}

	s.basePos = pos
	s.anchor = time.Now()

	slog.Debug("sim engine seek dispatched",
		"target", target,
		"flags", int(flags),
		"position", pos,
		"keyframe", flags&SeekKeyFrame != 0)
	return nil
}

// SetActiveTracks records the selection; the sim engine has nothing to
// switch, so this only validates the session state.
func (s *SimSession) SetActiveTracks(kind tracks.Type, ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.prepared {
		return ErrNotOpen
	}
	slog.Debug("sim engine active tracks set", "track_type", kind.String(), "ids", ids)
	return nil
}

// StreamMetadata returns the resolved stream layout.
func (s *SimSession) StreamMetadata(ctx context.Context) (StreamMetadata, error) {
	if err := ctx.Err(); err != nil {
		return StreamMetadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StreamMetadata{}, ErrSessionClosed
	}
	if !s.prepared {
		return StreamMetadata{}, ErrNotOpen
	}
	return s.meta, nil
}

// SetPlayState starts or stops the simulated clock.
func (s *SimSession) SetPlayState(state PlayState) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == state {
		s.mu.Unlock()
		return nil
	}

	// Freeze the position before switching state.
	s.basePos = s.positionLocked()
	s.anchor = time.Now()
	s.state = state

	switch state {
	case StatePlaying:
		s.startWatcherLocked()
	case StatePaused, StateStopped:
		s.stopWatcherLocked()
		if state == StateStopped {
			s.basePos = 0
		}
	}
	s.mu.Unlock()

	s.fireState(state)
	return nil
}

// startWatcherLocked spawns the completion watcher. Callers hold s.mu.
func (s *SimSession) startWatcherLocked() {
	if s.watcherStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.watcherStop = stop
	s.watcherDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.checkCompletion() {
					return
				}
			}
		}
	}()
}

// checkCompletion handles end-of-media: looping rewinds, otherwise the
// engine reports a stopped play state.
func (s *SimSession) checkCompletion() (stopped bool) {
	s.mu.Lock()
	if s.closed || s.state != StatePlaying || s.meta.Live || s.meta.Duration == 0 {
		s.mu.Unlock()
		return false
	}
	if s.positionLocked() < s.meta.Duration {
		s.mu.Unlock()
		return false
	}

	if s.loop {
		s.basePos = 0
		s.anchor = time.Now()
		s.mu.Unlock()
		slog.Debug("sim engine looping back to start", "uri", s.uri)
		return false
	}

	s.state = StateStopped
	s.basePos = s.meta.Duration
	s.watcherStop = nil
	s.watcherDone = nil
	s.mu.Unlock()

	slog.Debug("sim engine playback completed", "uri", s.uri)
	s.fireState(StateStopped)
	return true
}

// stopWatcherLocked stops the completion watcher. Callers hold s.mu; the
// lock is released while waiting so the watcher can finish its tick.
func (s *SimSession) stopWatcherLocked() {
	if s.watcherStop == nil {
		return
	}
	stop := s.watcherStop
	done := s.watcherDone
	s.watcherStop = nil
	s.watcherDone = nil

	close(stop)
	s.mu.Unlock()
	<-done
	s.mu.Lock()
}

// SetVolume sets the simulated output volume.
func (s *SimSession) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %f out of range [0,1]", volume)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.volume = volume
	return nil
}

// SetRate sets the playback speed multiplier.
func (s *SimSession) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %f", rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	// Re-anchor so the rate change applies from the current position.
	s.basePos = s.positionLocked()
	s.anchor = time.Now()
	s.rate = rate
	return nil
}

// SetLoop toggles looping at end of media.
func (s *SimSession) SetLoop(loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.loop = loop
	return nil
}

// OnMediaStatus registers a status-transition callback.
func (s *SimSession) OnMediaStatus(fn func(old, new MediaStatus)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.statusFns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.statusFns, id)
	}
}

// OnEvent registers a generic event callback.
func (s *SimSession) OnEvent(fn func(Event)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.eventFns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.eventFns, id)
	}
}

// OnStateChanged registers a play-state callback.
func (s *SimSession) OnStateChanged(fn func(PlayState)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.stateFns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.stateFns, id)
	}
}

// EmitEvent injects a generic event, used by tests to exercise event
// translation without waiting on the simulated clock.
func (s *SimSession) EmitEvent(ev Event) {
	s.emit(ev)
}

func (s *SimSession) setStatus(status MediaStatus) {
	s.mu.Lock()
	old := s.status
	s.status = status
	fns := make([]func(old, new MediaStatus), 0, len(s.statusFns))
	for _, fn := range s.statusFns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(old, status)
	}
}

func (s *SimSession) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.eventFns))
	for _, fn := range s.eventFns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *SimSession) fireState(state PlayState) {
	s.mu.Lock()
	fns := make([]func(PlayState), 0, len(s.stateFns))
	for _, fn := range s.stateFns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Close stops the clock and invalidates the session. Idempotent.
func (s *SimSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Debug("sim engine session already closed")
		return nil
	}
	s.closed = true
	s.stopWatcherLocked()
	s.statusFns = make(map[int]func(old, new MediaStatus))
	s.eventFns = make(map[int]func(Event))
	s.stateFns = make(map[int]func(PlayState))
	s.mu.Unlock()

	slog.Info("sim engine session closed", "uri", s.uri)
	return nil
}

func uriScheme(uri string) string {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(uri[:idx])
}

func protocolAllowed(scheme string, protocols []string) bool {
	if scheme == "" {
		scheme = "file"
	}
	for _, p := range protocols {
		if strings.EqualFold(p, scheme) {
			return true
		}
	}
	return false
}

func paramDuration(params url.Values, key string, fallback time.Duration) time.Duration {
	raw := params.Get(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("invalid duration parameter", "key", key, "value", raw)
		return fallback
	}
	return d
}

func paramInt(params url.Values, key string, fallback int) int {
	raw := params.Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer parameter", "key", key, "value", raw)
		return fallback
	}
	return n
}
