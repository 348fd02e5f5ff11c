package playback

import (
	"errors"
	"fmt"

	"playsync.dev/internal/engine"
)

// ErrDisposed reports an operation that requires a live controller.
// Most commands on a disposed controller are deliberate no-ops; only
// Initialize surfaces this error.
var ErrDisposed = errors.New("controller is disposed")

// ErrNotInitialized reports a command that needs a successfully
// initialized engine session.
var ErrNotInitialized = errors.New("controller is not initialized")

// MediaOpenError reports a stream open or prepare failure.
type MediaOpenError struct {
	URI string
	Err error
}

func (e *MediaOpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to open media %q: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("failed to open media %q", e.URI)
}

func (e *MediaOpenError) Unwrap() error { return e.Err }

// InvalidVideoSizeError reports a surface allocation failure after the
// media itself opened successfully.
type InvalidVideoSizeError struct {
	URI     string
	Surface engine.SurfaceID
}

func (e *InvalidVideoSizeError) Error() string {
	return fmt.Sprintf("invalid render surface %d for media %q", e.Surface, e.URI)
}

// ArgumentError reports an invalid command argument, such as a zero or
// negative playback speed.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
}

// PlatformError surfaces an opaque engine-reported failure verbatim.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("engine failure during %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }
