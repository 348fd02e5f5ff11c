package state

import (
	"time"

	"playsync.dev/internal/tracks"
)

// NoneTrack is the active-track id meaning "no track selected".
const NoneTrack = -1

// TimeRange is a half-open buffered interval [Start, End).
type TimeRange struct {
	Start time.Duration
	End   time.Duration
}

// Size is a frame geometry in pixels.
type Size struct {
	Width  int
	Height int
}

// Snapshot is the complete observable playback state at an instant. It
// is an immutable value: transitions copy it and replace it wholesale,
// so observers may retain snapshots without synchronization.
//
// A Duration of zero means the stream length is unknown or live and is
// treated as unbounded for seek clamping.
type Snapshot struct {
	Duration      time.Duration
	Position      time.Duration
	CaptionOffset time.Duration

	// FrameSize holds the display geometry. For rotation corrections of
	// 90 or 270 degrees the width and height are stored already swapped.
	FrameSize          Size
	RotationCorrection int

	Buffered []TimeRange

	Tracks              []tracks.Descriptor
	ActiveVideoTrack    int
	ActiveAudioTrack    int
	ActiveSubtitleTrack int

	IsPlaying     bool
	IsLooping     bool
	IsBuffering   bool
	IsCompleted   bool
	IsInitialized bool
	IsLive        bool

	Volume        float64
	PlaybackSpeed float64

	// ErrorDescription is non-empty when a terminal or recoverable error
	// occurred. When the error happened before successful initialization
	// IsInitialized stays false; a mid-stream error retains the playable
	// fields for display continuity.
	ErrorDescription string

	Caption string
}

// New returns the initial snapshot for a fresh controller.
func New() Snapshot {
	return Snapshot{
		ActiveVideoTrack:    NoneTrack,
		ActiveAudioTrack:    NoneTrack,
		ActiveSubtitleTrack: NoneTrack,
		Volume:              1.0,
		PlaybackSpeed:       1.0,
	}
}

// AspectRatio derives width/height from the frame size, defaulting to
// 1.0 when either dimension is unknown or non-positive.
func (s Snapshot) AspectRatio() float64 {
	if s.FrameSize.Width <= 0 || s.FrameSize.Height <= 0 {
		return 1.0
	}
	return float64(s.FrameSize.Width) / float64(s.FrameSize.Height)
}

// BufferedLength reports how much is buffered ahead of the current
// position, based on the range containing it.
func (s Snapshot) BufferedLength() time.Duration {
	for _, r := range s.Buffered {
		if s.Position >= r.Start && s.Position < r.End {
			return r.End - s.Position
		}
	}
	return 0
}

// Equal reports structural equality so observers can skip redundant
// work on transitions that change nothing.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Duration != other.Duration ||
		s.Position != other.Position ||
		s.CaptionOffset != other.CaptionOffset ||
		s.FrameSize != other.FrameSize ||
		s.RotationCorrection != other.RotationCorrection ||
		s.ActiveVideoTrack != other.ActiveVideoTrack ||
		s.ActiveAudioTrack != other.ActiveAudioTrack ||
		s.ActiveSubtitleTrack != other.ActiveSubtitleTrack ||
		s.IsPlaying != other.IsPlaying ||
		s.IsLooping != other.IsLooping ||
		s.IsBuffering != other.IsBuffering ||
		s.IsCompleted != other.IsCompleted ||
		s.IsInitialized != other.IsInitialized ||
		s.IsLive != other.IsLive ||
		s.Volume != other.Volume ||
		s.PlaybackSpeed != other.PlaybackSpeed ||
		s.ErrorDescription != other.ErrorDescription ||
		s.Caption != other.Caption {
		return false
	}
	if len(s.Buffered) != len(other.Buffered) {
		return false
	}
	for i := range s.Buffered {
		if s.Buffered[i] != other.Buffered[i] {
			return false
		}
	}
	if len(s.Tracks) != len(other.Tracks) {
		return false
	}
	for i := range s.Tracks {
		if s.Tracks[i] != other.Tracks[i] {
			return false
		}
	}
	return true
}

// MergeBuffered returns the buffered set extended with r, keeping the
// intervals ordered and disjoint. Coverage never shrinks: merging an
// already-covered range is a no-op.
func MergeBuffered(ranges []TimeRange, r TimeRange) []TimeRange {
	if r.End <= r.Start {
		return ranges
	}

	merged := make([]TimeRange, 0, len(ranges)+1)
	inserted := false
	for _, existing := range ranges {
		switch {
		case existing.End < r.Start:
			merged = append(merged, existing)
		case r.End < existing.Start:
			if !inserted {
				merged = append(merged, r)
				inserted = true
			}
			merged = append(merged, existing)
		default:
			// Overlapping or adjacent: absorb into r and keep scanning.
			if existing.Start < r.Start {
				r.Start = existing.Start
			}
			if existing.End > r.End {
				r.End = existing.End
			}
		}
	}
	if !inserted {
		merged = append(merged, r)
	}
	return merged
}
