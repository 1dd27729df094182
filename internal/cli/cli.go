// Package cli is the command surface: the bare binary runs the control
// daemon, subcommands provide one-shot volume operations, history queries
// and autostart management.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/qtilities/voltrayke/internal/audio"
	"github.com/qtilities/voltrayke/internal/audio/alsa"
	"github.com/qtilities/voltrayke/internal/audio/pulse"
	"github.com/qtilities/voltrayke/internal/autostart"
	"github.com/qtilities/voltrayke/internal/config"
)

const Version = "0.3.0"

// CLI wires the command tree to the configuration, factory and terminal
// collaborators. Fields are swappable so tests can inject fakes.
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.Manager
	factory          audio.EngineFactory
	terminalDetector TerminalDetector
	autostartFactory func() (*autostart.Manager, error)
}

// NewCLI creates a CLI with the production collaborators.
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	c := &CLI{
		configManager:    config.NewManager(),
		factory:          newBackendFactory(),
		terminalDetector: &DefaultTerminalDetector{},
	}

	rootCmd := &cobra.Command{
		Use:   "voltrayke",
		Short: "Volume control for the system tray",
		Long:  "VolTrayke keeps a single audio sink under control across ALSA and PulseAudio, with change tracking and session autostart.",
		RunE:  c.runDaemonE,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newStatusCommand(c))
	rootCmd.AddCommand(newSetCommand(c))
	rootCmd.AddCommand(newStepCommand(c, "up"))
	rootCmd.AddCommand(newStepCommand(c, "down"))
	rootCmd.AddCommand(newMuteCommand(c, "mute"))
	rootCmd.AddCommand(newMuteCommand(c, "unmute"))
	rootCmd.AddCommand(newMuteCommand(c, "toggle"))
	rootCmd.AddCommand(newDevicesCommand(c))
	rootCmd.AddCommand(newEnginesCommand(c))
	rootCmd.AddCommand(newHistoryCommand(c))
	rootCmd.AddCommand(newMixerCommand(c))
	rootCmd.AddCommand(newAutostartCommand(c))

	c.rootCmd = rootCmd
	return c
}

// newBackendFactory builds the factory over the compiled-in backends.
func newBackendFactory() audio.EngineFactory {
	return audio.NewStaticFactory(map[audio.EngineID]audio.BackendSpec{
		audio.Alsa: {
			New:       func() audio.Engine { return alsa.NewEngine(alsa.Options{}) },
			Available: alsa.Available,
		},
		audio.PulseAudio: {
			New:       func() audio.Engine { return pulse.NewEngine() },
			Available: pulse.Available,
		},
	})
}

// Run executes the CLI with the given arguments and I/O streams.
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "voltrayke version %s\n", Version)
		return 0
	}

	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		return 1
	}
	return 0
}

// loadConfig loads the configuration honoring the --config flag and
// environment overrides.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := c.configManager.LoadFromFile(path)
	if err != nil {
		cmd.PrintErrf("Error loading config: %v\n", err)
		slog.Error("config load failed", "path", path, "error", err)
		return nil, "", fmt.Errorf("error loading config: %w", err)
	}

	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)
	return cfg, path, nil
}

// openChannel constructs the configured engine and selects the configured
// channel for a one-shot operation. The caller must Close the engine.
func (c *CLI) openChannel(cfg *config.Config) (audio.Engine, audio.Device, error) {
	id := audio.EngineID(cfg.EngineID)

	engine, err := c.factory.CreateEngine(id)
	if err != nil {
		return nil, nil, err
	}
	engine.SetNormalized(cfg.Normalized)
	if policy, ok := engine.(audio.MaxVolumePolicy); ok {
		policy.SetIgnoreMaxVolume(cfg.IgnoreMaxVolume)
	}

	sinks := engine.Sinks()
	if len(sinks) == 0 {
		engine.Close()
		return nil, nil, fmt.Errorf("engine %s: %w", id, audio.ErrNoDevice)
	}

	idx := cfg.ChannelID
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sinks) {
		slog.Warn("configured channel out of range, using last sink",
			"requested", idx, "sinks", len(sinks))
		idx = len(sinks) - 1
	}
	return engine, sinks[idx], nil
}

// setupLogging configures slog with rotated file logging when enabled.
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}

	writers := []io.Writer{stderrWriter}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := cfg.FileLogging.Filename
		if logFilePath == "" {
			logFilePath = config.CachePath("voltrayke.log")
		}

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
			// Continue without file logging rather than failing
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			writers = append(writers, fileWriter)
			slog.Debug("file logging enabled", "path", logFilePath)
		}
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"writers", len(writers))
}
