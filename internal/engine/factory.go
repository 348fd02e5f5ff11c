package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/afero"
)

// Factory creates engine Sessions by engine kind.
type Factory interface {
	CreateSession(kind string) (Session, error)
	SupportedEngines() []string
	IsValidEngine(kind string) bool
	// Platform identifies the platform sessions run on, checked against
	// configured platform allow-lists.
	Platform() string
}

// Factory errors.
var (
	ErrInvalidEngine      = errors.New("invalid engine kind")
	ErrPlatformNotAllowed = errors.New("platform excluded by allow-list")
)

// DefaultFactory implements Factory. Native engine bindings register
// here; without one, "auto" falls back to the sim engine.
type DefaultFactory struct {
	fs       afero.Fs
	registry *SimSurfaceRegistry
	goos     string
}

// NewFactory creates a factory allocating surfaces from the given
// registry and sniffing local media through fs.
func NewFactory(fs afero.Fs, registry *SimSurfaceRegistry) *DefaultFactory {
	return &DefaultFactory{
		fs:       fs,
		registry: registry,
		goos:     runtime.GOOS,
	}
}

// NewFactoryWithPlatform creates a factory reporting the given platform,
// for tests exercising the allow-list gate.
func NewFactoryWithPlatform(fs afero.Fs, registry *SimSurfaceRegistry, goos string) *DefaultFactory {
	factory := NewFactory(fs, registry)
	factory.goos = goos
	return factory
}

// Platform returns the platform identifier sessions run on.
func (f *DefaultFactory) Platform() string {
	return f.goos
}

// CreateSession creates a Session of the requested kind. An empty kind
// defaults to "auto".
func (f *DefaultFactory) CreateSession(kind string) (Session, error) {
	if kind == "" {
		kind = "auto"
	}

	slog.Debug("creating engine session", "kind", kind, "platform", f.goos)

	switch kind {
	case "auto", "sim":
		return NewSimSession(f.fs, f.registry), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEngine, kind)
	}
}

// SupportedEngines lists the engine kinds this factory can create.
func (f *DefaultFactory) SupportedEngines() []string {
	return []string{"auto", "sim"}
}

// IsValidEngine reports whether the kind is creatable.
func (f *DefaultFactory) IsValidEngine(kind string) bool {
	if kind == "" {
		return true
	}
	for _, supported := range f.SupportedEngines() {
		if supported == kind {
			return true
		}
	}
	return false
}
