package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"playsync.dev/internal/config"
	"playsync.dev/internal/engine"
	"playsync.dev/internal/session"
	"playsync.dev/internal/tracking"
)

const Version = "0.3.0"

// CLI wires the playback stack behind a cobra command tree.
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.Manager
	surfaces         *engine.SimSurfaceRegistry
	factory          engine.Factory
	sessions         *session.Registry
	trackingDB       *sql.DB
	terminalDetector TerminalDetector
}

// NewCLI creates a CLI instance with all subcommands registered.
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "playsync",
		Short: "Playback state synchronization engine",
		Long:  "Playsync binds a media engine session to one observable snapshot of playback state, with position polling, track resolution, and closed captions.",
	}

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newAnalyzeCommand())

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("engine", "", "Engine kind (auto, sim)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if version, _ := cmd.Flags().GetBool("version"); version {
			cmd.Printf("playsync version %s\nPlayback state synchronization engine\n", Version)
			return nil
		}
		return cmd.Help()
	}

	return &CLI{rootCmd: rootCmd}
}

type cliContextKey struct{}

func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliContextKey{}, cli)
}

func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

// Run executes the CLI with the given arguments and I/O streams and
// returns the process exit code.
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// Version requests skip system initialization entirely.
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "playsync version %s\nPlayback state synchronization engine\n", Version)
		return 0
	}

	c.initializeSystems()

	defer func() {
		if c.sessions != nil {
			c.sessions.DisposeAll()
		}
		if c.trackingDB != nil {
			if err := c.trackingDB.Close(); err != nil {
				slog.Error("error closing history database", "error", err)
			}
		}
	}()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		return 1
	}
	return 0
}

func (c *CLI) initializeSystems() {
	if c.configManager == nil {
		c.configManager = config.NewManager()
	}
	if c.surfaces == nil {
		c.surfaces = engine.NewSimSurfaceRegistry()
	}
	if c.factory == nil {
		c.factory = engine.NewFactory(afero.NewOsFs(), c.surfaces)
	}
	if c.sessions == nil {
		c.sessions = session.NewRegistry(c.factory, c.surfaces)
	}
}

// loadAndValidateConfig resolves the effective configuration: file or
// XDG search, environment overrides, then command-line overrides.
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	engineFlag, _ := cmd.Flags().GetString("engine")
	logLevelFlag, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	if configFile != "" {
		loaded, err := cli.configManager.LoadFromFile(configFile)
		if err != nil {
			slog.Warn("config file not found, using defaults", "file", configFile, "error", err)
			cfg = cli.configManager.GetDefaultConfig()
		} else {
			cfg = loaded
		}
		cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)
	} else {
		cfg = cli.configManager.LoadConfig()
	}

	if engineFlag != "" {
		cfg.Engine = engineFlag
		slog.Debug("engine override applied", "engine", engineFlag)
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
		slog.Debug("log level override applied", "log_level", logLevelFlag)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyVolumeFlag validates and applies a --volume flag value if set.
func applyVolumeFlag(cmd *cobra.Command, cfg *config.Config) error {
	volumeStr, _ := cmd.Flags().GetString("volume")
	if volumeStr == "" {
		return nil
	}
	vol, err := strconv.ParseFloat(volumeStr, 64)
	if err != nil {
		cmd.PrintErrf("Error: invalid volume value '%s': %v\n", volumeStr, err)
		return fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
	}
	if vol < 0.0 || vol > 1.0 {
		cmd.PrintErrf("Error: volume must be between 0.0 and 1.0, got %f\n", vol)
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", vol)
	}
	cfg.Volume = vol
	return nil
}

// setupLogging installs the default slog handler: stderr at the
// configured level, plus the rotating file at debug when file logging
// is enabled.
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}

	stderrHandler := slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level})

	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		slog.SetDefault(slog.New(stderrHandler))
		return
	}

	logFilePath := cfg.FileLogging.Filename
	if logFilePath == "" {
		xdgDirs := config.NewXDGDirs()
		logFilePath = filepath.Join(xdgDirs.GetCachePath("logs"), "playsync.log")
	}

	logDir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		slog.Error("failed to create log directory", "path", logDir, "error", err)
		slog.SetDefault(slog.New(stderrHandler))
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.FileLogging.MaxSizeMB,
		MaxBackups: cfg.FileLogging.MaxBackups,
		MaxAge:     cfg.FileLogging.MaxAgeDays,
		Compress:   cfg.FileLogging.Compress,
	}
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug})

	slog.SetDefault(slog.New(NewMultiLevelHandler(stderrHandler, fileHandler)))
	slog.Debug("file logging enabled", "path", logFilePath, "stderr_level", level.String())
}

// initializeTracking opens the history database when tracking is
// enabled. Failures disable tracking rather than failing the command.
func (c *CLI) initializeTracking(cfg *config.Config) {
	if c.trackingDB != nil {
		return
	}
	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		slog.Debug("playback tracking disabled")
		return
	}

	dbPath := cfg.Tracking.DatabasePath
	if dbPath == "" {
		resolved, err := tracking.GetDatabasePath()
		if err != nil {
			slog.Error("failed to resolve history database path", "error", err)
			return
		}
		dbPath = resolved
	}

	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Error("failed to open history database", "path", dbPath, "error", err)
		return
	}

	c.trackingDB = db
	slog.Debug("history database opened", "path", dbPath)
}
