package engine

import (
	"context"
	"errors"
	"time"

	"playsync.dev/internal/tracks"
)

// Common errors returned by Session implementations.
var (
	ErrSessionClosed = errors.New("engine session is closed")
	ErrNotOpen       = errors.New("no media opened on session")
	ErrOpenFailed    = errors.New("failed to open media")
)

// PlayState is the engine-reported playback state.
type PlayState int

const (
	StateStopped PlayState = iota
	StatePaused
	StatePlaying
)

// String returns a human-readable label for the play state.
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MediaStatus is the engine-reported media loading status.
type MediaStatus int

const (
	StatusNone MediaStatus = iota
	StatusLoading
	StatusLoaded
	StatusBuffering
	StatusBuffered
	StatusInvalid
)

// String returns a human-readable label for the media status.
func (s MediaStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusBuffering:
		return "buffering"
	case StatusBuffered:
		return "buffered"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// EventReaderBuffering is the generic event category reporting demuxer
// read-ahead progress.
const EventReaderBuffering = "reader.buffering"

// Event is a generic engine event outside the media-status and
// play-state callback categories.
type Event struct {
	Category string
	Detail   string
}

// SeekFlag controls seek dispatch semantics.
type SeekFlag int

const (
	// SeekAccurate lands on the exact requested position.
	SeekAccurate SeekFlag = 0
	// SeekKeyFrame aligns the seek to the nearest key frame (fast seek).
	SeekKeyFrame SeekFlag = 1 << iota
	// SeekFromNow makes the target relative to the current position.
	SeekFromNow
	// SeekFrame interprets the target as a frame count in engine-native
	// frame units rather than a timestamp.
	SeekFrame
)

// VideoStream is raw video stream metadata as reported by the engine.
type VideoStream struct {
	ID        int
	Width     int
	Height    int
	Rotation  int
	Bitrate   int64
	FrameRate float64
	Codec     string
}

// AudioStream is raw audio stream metadata as reported by the engine.
type AudioStream struct {
	ID         int
	Language   string
	Label      string
	Channels   int
	Bitrate    int64
	SampleRate int
	Codec      string
}

// SubtitleStream is raw subtitle stream metadata as reported by the engine.
type SubtitleStream struct {
	ID       int
	Language string
	Label    string
	Codec    string
}

// StreamMetadata is the resolved stream layout of an opened media.
// A zero Duration together with Live marks an unbounded live session.
type StreamMetadata struct {
	Duration time.Duration
	Live     bool
	Video    []VideoStream
	Audio    []AudioStream
	Subtitle []SubtitleStream
}

// Session is one native engine decode session. Implementations invoke
// registered callbacks from arbitrary internal goroutines; callers are
// responsible for funneling them into a single serialization point.
//
// A Session is exclusively owned: no two call sites may mutate engine
// properties concurrently. Close is idempotent.
type Session interface {
	// Open binds the session to a media URI. A non-empty protocol
	// allow-list restricts accepted URI schemes.
	Open(ctx context.Context, uri string, headers map[string]string, protocols []string) error

	// Prepare resolves the stream and blocks until the media status
	// settles, returning the status reached.
	Prepare(ctx context.Context) (MediaStatus, error)

	// AllocateSurface creates the render surface for this session and
	// returns its identifier. A negative identifier reports failure.
	AllocateSurface(ctx context.Context, opts SurfaceOptions) (SurfaceID, error)

	// SetProperty applies an opaque engine property.
	SetProperty(key, value string)

	Position() time.Duration
	BufferedLength() time.Duration

	// Seek dispatches a seek. With SeekFrame the target is a frame
	// count; with SeekFromNow it is relative to the current position.
	Seek(ctx context.Context, target time.Duration, flags SeekFlag) error

	SetActiveTracks(kind tracks.Type, ids []int) error
	StreamMetadata(ctx context.Context) (StreamMetadata, error)

	SetPlayState(state PlayState) error
	SetVolume(volume float64) error
	SetRate(rate float64) error
	SetLoop(loop bool) error

	// Callback registration. Each returns a removal function; removal
	// is idempotent.
	OnMediaStatus(fn func(old, new MediaStatus)) (remove func())
	OnEvent(fn func(Event)) (remove func())
	OnStateChanged(fn func(PlayState)) (remove func())

	Close() error
}

// PlatformAllowed checks the configured platform allow-list against the
// running platform. An empty list allows every platform.
func PlatformAllowed(allowList []string, goos string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, allowed := range allowList {
		if allowed == goos {
			return true
		}
	}
	return false
}
