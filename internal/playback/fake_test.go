package playback

import (
	"context"
	"sync"
	"time"

	"playsync.dev/internal/captions"
	"playsync.dev/internal/engine"
	"playsync.dev/internal/tracks"
)

func captionsFixture() captions.List {
	return captions.NewList([]captions.Cue{
		{Start: 1 * time.Second, End: 3 * time.Second, Text: "first"},
		{Start: 5 * time.Second, End: 7 * time.Second, Text: "second"},
	})
}

// fakeSession is a fully scripted engine session. Callbacks fire
// synchronously from emit helpers so tests control event ordering.
type fakeSession struct {
	registry *engine.SimSurfaceRegistry

	mu           sync.Mutex
	openErr      error
	prepareErr   error
	prepareState engine.MediaStatus
	badSurface   bool
	meta         engine.StreamMetadata

	position time.Duration
	buffered time.Duration

	playState    engine.PlayState
	volume       float64
	rate         float64
	loop         bool
	properties   map[string]string
	activeTracks map[tracks.Type][]int
	seeks        []fakeSeek
	openedURI    string
	closed       bool
	closeCount   int

	// Non-nil gates block Position until fed a value, letting tests
	// hold a poll sample in flight. positionStarted is closed when
	// Position begins waiting on the gate.
	positionGate    chan time.Duration
	positionStarted chan struct{}

	// Non-nil gates block Prepare until closed; prepareStarted is
	// closed when Prepare begins waiting.
	prepareBlock   chan struct{}
	prepareStarted chan struct{}

	nextCallback int
	statusFns    map[int]func(old, new engine.MediaStatus)
	eventFns     map[int]func(engine.Event)
	stateFns     map[int]func(engine.PlayState)
}

type fakeSeek struct {
	target time.Duration
	flags  engine.SeekFlag
}

func newFakeSession(registry *engine.SimSurfaceRegistry) *fakeSession {
	return &fakeSession{
		registry:     registry,
		prepareState: engine.StatusLoaded,
		volume:       1.0,
		rate:         1.0,
		properties:   map[string]string{},
		activeTracks: map[tracks.Type][]int{},
		statusFns:    map[int]func(old, new engine.MediaStatus){},
		eventFns:     map[int]func(engine.Event){},
		stateFns:     map[int]func(engine.PlayState){},
		meta: engine.StreamMetadata{
			Duration: 10 * time.Second,
			Video:    []engine.VideoStream{{ID: 1, Width: 1920, Height: 1080, Bitrate: 2_800_000}},
			Audio:    []engine.AudioStream{{ID: 2, Language: "en", Channels: 2, Bitrate: 128_000}},
		},
	}
}

func (f *fakeSession) Open(ctx context.Context, uri string, headers map[string]string, protocols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.openedURI = uri
	return nil
}

func (f *fakeSession) Prepare(ctx context.Context) (engine.MediaStatus, error) {
	f.mu.Lock()
	block := f.prepareBlock
	started := f.prepareStarted
	err := f.prepareErr
	status := f.prepareState
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			close(started)
		}
		select {
		case <-ctx.Done():
			return engine.StatusNone, ctx.Err()
		case <-block:
		}
	}
	if err != nil {
		return engine.StatusNone, err
	}
	return status, nil
}

func (f *fakeSession) AllocateSurface(ctx context.Context, opts engine.SurfaceOptions) (engine.SurfaceID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badSurface {
		return engine.SurfaceID(-1), nil
	}
	width, height := 1920, 1080
	if len(f.meta.Video) > 0 {
		width, height = f.meta.Video[0].Width, f.meta.Video[0].Height
	}
	return f.registry.Register(width, height), nil
}

func (f *fakeSession) SetProperty(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.properties[key] = value
}

func (f *fakeSession) Position() time.Duration {
	f.mu.Lock()
	gate := f.positionGate
	started := f.positionStarted
	pos := f.position
	f.mu.Unlock()
	if gate != nil {
		if started != nil {
			close(started)
		}
		return <-gate
	}
	return pos
}

func (f *fakeSession) BufferedLength() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeSession) Seek(ctx context.Context, target time.Duration, flags engine.SeekFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, fakeSeek{target: target, flags: flags})
	if flags&engine.SeekFrame == 0 && flags&engine.SeekFromNow == 0 {
		f.position = target
	}
	return nil
}

func (f *fakeSession) SetActiveTracks(kind tracks.Type, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeTracks[kind] = ids
	return nil
}

func (f *fakeSession) StreamMetadata(ctx context.Context) (engine.StreamMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta, nil
}

func (f *fakeSession) SetPlayState(state engine.PlayState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playState = state
	return nil
}

func (f *fakeSession) SetVolume(volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
	return nil
}

func (f *fakeSession) SetRate(rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	return nil
}

func (f *fakeSession) SetLoop(loop bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loop = loop
	return nil
}

func (f *fakeSession) OnMediaStatus(fn func(old, new engine.MediaStatus)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextCallback
	f.nextCallback++
	f.statusFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.statusFns, id)
	}
}

func (f *fakeSession) OnEvent(fn func(engine.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextCallback
	f.nextCallback++
	f.eventFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.eventFns, id)
	}
}

func (f *fakeSession) OnStateChanged(fn func(engine.PlayState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextCallback
	f.nextCallback++
	f.stateFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.stateFns, id)
	}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

func (f *fakeSession) emitStatus(old, status engine.MediaStatus) {
	f.mu.Lock()
	fns := make([]func(old, new engine.MediaStatus), 0, len(f.statusFns))
	for _, fn := range f.statusFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(old, status)
	}
}

func (f *fakeSession) emitState(state engine.PlayState) {
	f.mu.Lock()
	fns := make([]func(engine.PlayState), 0, len(f.stateFns))
	for _, fn := range f.stateFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (f *fakeSession) emitEvent(ev engine.Event) {
	f.mu.Lock()
	fns := make([]func(engine.Event), 0, len(f.eventFns))
	for _, fn := range f.eventFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSession) setPosition(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

func (f *fakeSession) setBuffered(buffered time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffered = buffered
}

func (f *fakeSession) lastSeek() (fakeSeek, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seeks) == 0 {
		return fakeSeek{}, false
	}
	return f.seeks[len(f.seeks)-1], true
}

func (f *fakeSession) seekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeks)
}

func (f *fakeSession) currentPlayState() engine.PlayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playState
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out pre-built sessions in order.
type fakeFactory struct {
	mu       sync.Mutex
	sessions []engine.Session
	platform string
	created  int
}

func newFakeFactory(platform string, sessions ...engine.Session) *fakeFactory {
	return &fakeFactory{sessions: sessions, platform: platform}
}

func (f *fakeFactory) CreateSession(kind string) (engine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created >= len(f.sessions) {
		return nil, engine.ErrInvalidEngine
	}
	session := f.sessions[f.created]
	f.created++
	return session, nil
}

func (f *fakeFactory) SupportedEngines() []string { return []string{"auto", "sim"} }

func (f *fakeFactory) IsValidEngine(kind string) bool { return true }

func (f *fakeFactory) Platform() string { return f.platform }
