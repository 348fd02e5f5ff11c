package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents rotating file log configuration.
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// TrackingConfig represents playback event tracking configuration.
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// Config represents playsync configuration: the options recognized at
// controller initialization plus ambient application settings.
type Config struct {
	Volume        float64 `json:"volume"`         // Output volume (0.0 to 1.0)
	PlaybackSpeed float64 `json:"playback_speed"` // Initial speed multiplier (> 0)
	Looping       bool    `json:"looping"`        // Loop at end of media
	AutoPlay      bool    `json:"auto_play"`      // Start playing once initialized

	Engine            string            `json:"engine"`              // Engine kind (auto, sim)
	DecoderPreference []string          `json:"decoder_preference"`  // Ordered decoder names handed to the engine
	MaxSurfaceWidth   int               `json:"max_surface_width"`   // 0 = unbounded
	MaxSurfaceHeight  int               `json:"max_surface_height"`  // 0 = unbounded
	LowLatency        int               `json:"low_latency"`         // Live latency level: 0, 1 or 2
	FastSeek          bool              `json:"fast_seek"`           // Key-frame aligned seeks by default
	Properties        map[string]string `json:"properties"`          // Opaque per-property engine overrides
	PlatformAllowList []string          `json:"platform_allow_list"` // GOOS values allowed to initialize (empty = all)
	PlayInBackground  bool              `json:"play_in_background"`  // Bypass lifecycle auto-pause
	MixWithOthers     bool              `json:"mix_with_others"`     // Share the audio output with other apps
	Headers           map[string]string `json:"headers"`             // Custom headers passed to open
	Protocols         []string          `json:"protocols"`           // URI scheme allow-list for open

	TrackNameSeparator string `json:"track_name_separator"` // Separator for audio/subtitle track names
	PollIntervalMS     int    `json:"poll_interval_ms"`     // Position poll interval

	LogLevel    string             `json:"log_level"` // debug, info, warn, error
	FileLogging *FileLoggingConfig `json:"file_logging,omitempty"`
	Tracking    *TrackingConfig    `json:"tracking,omitempty"`
}

// PollInterval returns the position poll interval, defaulting to 500ms.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// XDGInterface defines the directory operations the manager needs, so
// tests can substitute fixed paths.
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// Manager handles loading, saving, and validating configuration.
type Manager struct {
	fs  afero.Fs
	xdg XDGInterface
}

// NewManager creates a configuration manager on the OS filesystem.
func NewManager() *Manager {
	slog.Debug("creating new config manager")
	return &Manager{
		fs:  afero.NewOsFs(),
		xdg: NewXDGDirs(),
	}
}

// NewManagerWithFs creates a manager on the given filesystem, for tests.
func NewManagerWithFs(fs afero.Fs) *Manager {
	return &Manager{
		fs:  fs,
		xdg: NewXDGDirs(),
	}
}

// GetDefaultConfig returns the default configuration.
func (m *Manager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Volume:             1.0,
		PlaybackSpeed:      1.0,
		Engine:             "auto",
		Properties:         map[string]string{},
		Headers:            map[string]string{},
		TrackNameSeparator: "",
		PollIntervalMS:     500,
		LogLevel:           "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: &TrackingConfig{
			Enabled:      false,
			DatabasePath: "",
		},
	}

	slog.Debug("generated default config",
		"volume", defaultConfig.Volume,
		"engine", defaultConfig.Engine,
		"poll_interval_ms", defaultConfig.PollIntervalMS,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file. Fields absent
// from the file keep their default values.
func (m *Manager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(m.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := m.GetDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := m.ValidateConfig(config); err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"engine", config.Engine)

	return config, nil
}

// SaveToFile saves configuration to a specific file.
func (m *Manager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := m.ValidateConfig(config); err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(m.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration from the first readable XDG config
// path, falling back to defaults, then applies environment overrides.
func (m *Manager) LoadConfig() *Config {
	for _, path := range m.xdg.GetConfigPaths("config.json") {
		exists, err := afero.Exists(m.fs, path)
		if err != nil || !exists {
			continue
		}
		config, err := m.LoadFromFile(path)
		if err != nil {
			slog.Warn("skipping unreadable config file", "path", path, "error", err)
			continue
		}
		slog.Debug("config loaded from XDG path", "path", path)
		return m.ApplyEnvironmentOverrides(config)
	}

	slog.Debug("no config file found, using defaults")
	return m.ApplyEnvironmentOverrides(m.GetDefaultConfig())
}

// ValidateConfig checks configuration invariants.
func (m *Manager) ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Volume < 0.0 || config.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", config.Volume)
	}
	if config.PlaybackSpeed <= 0.0 {
		return fmt.Errorf("playback speed must be positive, got %f", config.PlaybackSpeed)
	}
	if config.LowLatency < 0 || config.LowLatency > 2 {
		return fmt.Errorf("low latency level must be 0, 1 or 2, got %d", config.LowLatency)
	}
	if config.MaxSurfaceWidth < 0 || config.MaxSurfaceHeight < 0 {
		return fmt.Errorf("max surface dimensions cannot be negative")
	}
	if config.PollIntervalMS < 0 {
		return fmt.Errorf("poll interval cannot be negative, got %d", config.PollIntervalMS)
	}
	switch config.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", config.LogLevel)
	}
	return nil
}

// ApplyEnvironmentOverrides applies PLAYSYNC_* environment variables on
// top of the loaded configuration and returns the modified copy.
func (m *Manager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	result := *config

	if volumeStr := os.Getenv("PLAYSYNC_VOLUME"); volumeStr != "" {
		if volume, err := strconv.ParseFloat(volumeStr, 64); err == nil && volume >= 0.0 && volume <= 1.0 {
			result.Volume = volume
			slog.Debug("applied volume override from environment", "volume", volume)
		} else {
			slog.Warn("invalid PLAYSYNC_VOLUME environment variable", "value", volumeStr)
		}
	}

	if speedStr := os.Getenv("PLAYSYNC_SPEED"); speedStr != "" {
		if speed, err := strconv.ParseFloat(speedStr, 64); err == nil && speed > 0.0 {
			result.PlaybackSpeed = speed
			slog.Debug("applied speed override from environment", "speed", speed)
		} else {
			slog.Warn("invalid PLAYSYNC_SPEED environment variable", "value", speedStr)
		}
	}

	if engine := os.Getenv("PLAYSYNC_ENGINE"); engine != "" {
		result.Engine = engine
		slog.Debug("applied engine override from environment", "engine", engine)
	}

	if level := os.Getenv("PLAYSYNC_LOG_LEVEL"); level != "" {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "error":
			result.LogLevel = strings.ToLower(level)
			slog.Debug("applied log level override from environment", "log_level", result.LogLevel)
		default:
			slog.Warn("invalid PLAYSYNC_LOG_LEVEL environment variable", "value", level)
		}
	}

	if fastSeekStr := os.Getenv("PLAYSYNC_FAST_SEEK"); fastSeekStr != "" {
		if fastSeek, err := strconv.ParseBool(fastSeekStr); err == nil {
			result.FastSeek = fastSeek
			slog.Debug("applied fast seek override from environment", "fast_seek", fastSeek)
		} else {
			slog.Warn("invalid PLAYSYNC_FAST_SEEK environment variable", "value", fastSeekStr)
		}
	}

	if backgroundStr := os.Getenv("PLAYSYNC_PLAY_IN_BACKGROUND"); backgroundStr != "" {
		if background, err := strconv.ParseBool(backgroundStr); err == nil {
			result.PlayInBackground = background
			slog.Debug("applied background playback override from environment", "play_in_background", background)
		} else {
			slog.Warn("invalid PLAYSYNC_PLAY_IN_BACKGROUND environment variable", "value", backgroundStr)
		}
	}

	if trackingStr := os.Getenv("PLAYSYNC_TRACKING"); trackingStr != "" {
		if enabled, err := strconv.ParseBool(trackingStr); err == nil {
			if result.Tracking == nil {
				result.Tracking = &TrackingConfig{Enabled: enabled}
			} else {
				trackingCopy := *result.Tracking
				trackingCopy.Enabled = enabled
				result.Tracking = &trackingCopy
			}
			slog.Debug("applied tracking override from environment", "enabled", enabled)
		} else {
			slog.Warn("invalid PLAYSYNC_TRACKING environment variable", "value", trackingStr)
		}
	}

	return &result
}
