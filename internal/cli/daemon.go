package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qtilities/voltrayke/internal/audio"
	"github.com/qtilities/voltrayke/internal/config"
	"github.com/qtilities/voltrayke/internal/control"
	"github.com/qtilities/voltrayke/internal/tracking"
)

// runDaemonE is the default behavior when no subcommand is given: run the
// control loop until SIGINT or SIGTERM.
func (c *CLI) runDaemonE(cmd *cobra.Command, args []string) error {
	if version, _ := cmd.Flags().GetBool("version"); version {
		cmd.Printf("voltrayke version %s\n", Version)
		return nil
	}

	cfg, cfgPath, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, cmd.ErrOrStderr())

	if err := c.ensureWritableConfig(cfgPath, cfg); err != nil {
		slog.Warn("could not write initial config file", "path", cfgPath, "error", err)
	}

	opts := []control.Option{
		control.WithPresenter(control.NewSlogPresenter(slog.Default())),
	}

	// History recorder, with graceful degradation.
	if cfg.HistoryEnabled {
		db, err := tracking.NewDatabase(tracking.DefaultDatabasePath())
		if err != nil {
			slog.Error("failed to open history database, continuing without history", "error", err)
		} else {
			defer db.Close()
			opts = append(opts, control.WithRecorder(tracking.NewRecorder(db)))
		}
	}

	orch := control.New(c.factory, controlConfig(cfg), opts...)
	orch.RequestSwitchEngine(audio.EngineID(cfg.EngineID))
	orch.RequestSwitchChannel(cfg.ChannelID)

	var mu sync.Mutex
	current := cfg

	// Hot reload: settings changes land without a restart. Engine and
	// channel changes go through the orchestrator's switch path.
	watcher, err := config.NewWatcher(c.configManager, cfgPath, func(next *config.Config) {
		next = c.configManager.ApplyEnvironmentOverrides(next)
		orch.ApplyConfig(controlConfig(next))
		orch.RequestSwitchEngine(audio.EngineID(next.EngineID))
		orch.RequestSwitchChannel(next.ChannelID)
		c.syncAutostart(next)

		mu.Lock()
		current = next
		mu.Unlock()
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "error", err)
	} else {
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher failed to start", "error", err)
		}
		defer watcher.Stop()
	}

	c.syncAutostart(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("daemon started",
		"engine", audio.EngineID(cfg.EngineID),
		"channel", cfg.ChannelID,
		"config", cfgPath)

	orch.Run(ctx)

	// Persist the settings that were live at shutdown.
	mu.Lock()
	last := current
	mu.Unlock()
	if err := c.configManager.SaveToFile(last, cfgPath); err != nil {
		slog.Warn("could not save config on shutdown", "path", cfgPath, "error", err)
	}

	slog.Info("daemon stopped")
	return nil
}

// controlConfig maps persisted settings onto the control core's slice of
// them.
func controlConfig(cfg *config.Config) control.Config {
	return control.Config{
		Normalized:        cfg.Normalized,
		IgnoreMaxVolume:   cfg.IgnoreMaxVolume,
		SingleStep:        cfg.SingleStep,
		PageStep:          cfg.PageStep,
		MuteOnMiddleClick: cfg.MuteOnMiddleClick,
	}
}

// syncAutostart brings the XDG autostart entry in line with the setting.
func (c *CLI) syncAutostart(cfg *config.Config) {
	mgr, err := c.autostartManager()
	if err != nil {
		slog.Warn("autostart manager unavailable", "error", err)
		return
	}
	if err := mgr.Sync(cfg.UseAutostart); err != nil {
		slog.Warn("autostart sync failed", "enabled", cfg.UseAutostart, "error", err)
	}
}

// ensureWritableConfig writes the defaults on first run so users have a
// file to edit.
func (c *CLI) ensureWritableConfig(cfgPath string, cfg *config.Config) error {
	if _, err := os.Stat(cfgPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat config file: %w", err)
	}
	return c.configManager.SaveToFile(cfg, cfgPath)
}
