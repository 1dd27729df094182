package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qtilities/voltrayke/internal/audio"
	"github.com/qtilities/voltrayke/internal/autostart"
	"github.com/qtilities/voltrayke/internal/tracking"
)

// newStatusCommand reports the configured engine and channel state.
func newStatusCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active channel's volume and mute state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, dev, err := c.openChannel(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			volume := dev.Volume()
			mute := dev.Mute()
			icon := audio.DeriveIconState(volume, mute)

			if !c.isInteractiveTerminal(int(stdoutFd())) {
				// Script-friendly single line when piped.
				cmd.Printf("%d %t\n", volume, mute)
				return nil
			}

			cmd.Printf("Engine:  %s\n", engine.ID())
			cmd.Printf("Channel: %s\n", dev.Description())
			cmd.Printf("Volume:  %d%%\n", volume)
			cmd.Printf("Muted:   %t\n", mute)
			cmd.Printf("Icon:    %s\n", icon)
			return nil
		},
	}
}

// newSetCommand sets an absolute volume percentage.
func newSetCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "set PERCENT",
		Short: "Set the active channel's volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid volume %q: %w", args[0], err)
			}
			volume = audio.ClampVolume(volume)

			return c.withChannel(cmd, func(dev audio.Device) error {
				if err := dev.SetVolume(volume); err != nil {
					return fmt.Errorf("volume write failed: %w", err)
				}
				cmd.Printf("%d\n", dev.Volume())
				return nil
			})
		},
	}
}

// newStepCommand raises or lowers the volume by the configured step.
func newStepCommand(c *CLI, direction string) *cobra.Command {
	short := "Raise the volume by one step"
	if direction == "down" {
		short = "Lower the volume by one step"
	}

	cmd := &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetBool("page")

			cfg, _, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			step := cfg.SingleStep
			if page {
				step = cfg.PageStep
			}
			if direction == "down" {
				step = -step
			}

			engine, dev, err := c.openChannel(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			target := audio.ClampVolume(dev.Volume() + step)
			if err := dev.SetVolume(target); err != nil {
				return fmt.Errorf("volume write failed: %w", err)
			}
			cmd.Printf("%d\n", dev.Volume())
			return nil
		},
	}
	cmd.Flags().Bool("page", false, "Use the page step instead of the single step")
	return cmd
}

// newMuteCommand covers mute, unmute and toggle.
func newMuteCommand(c *CLI, action string) *cobra.Command {
	shorts := map[string]string{
		"mute":   "Mute the active channel",
		"unmute": "Unmute the active channel",
		"toggle": "Toggle the active channel's mute state",
	}

	return &cobra.Command{
		Use:   action,
		Short: shorts[action],
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withChannel(cmd, func(dev audio.Device) error {
				var err error
				switch action {
				case "mute":
					err = dev.SetMute(true)
				case "unmute":
					err = dev.SetMute(false)
				case "toggle":
					err = dev.ToggleMute()
				}
				if err != nil {
					return fmt.Errorf("mute write failed: %w", err)
				}
				cmd.Printf("%t\n", dev.Mute())
				return nil
			})
		},
	}
}

// newDevicesCommand lists the configured engine's sinks.
func newDevicesCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the sinks of the configured engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, err := c.factory.CreateEngine(audio.EngineID(cfg.EngineID))
			if err != nil {
				return err
			}
			defer engine.Close()

			sinks := engine.Sinks()
			if len(sinks) == 0 {
				cmd.PrintErrln("no sinks found")
				return nil
			}
			for i, dev := range sinks {
				marker := " "
				if i == cfg.ChannelID {
					marker = "*"
				}
				cmd.Printf("%s %d  %s\n", marker, i, dev.Description())
			}
			return nil
		},
	}
}

// newEnginesCommand lists the compiled-in backends and their availability.
func newEnginesCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the compiled-in audio backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range c.factory.SupportedEngines() {
				availability := "unavailable"
				if c.factory.IsAvailable(id) {
					availability = "available"
				}
				cmd.Printf("%d  %-11s %s\n", int(id), id, availability)
			}
			return nil
		},
	}
}

// newHistoryCommand queries the volume-event history database.
func newHistoryCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent volume and mute changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			if kind != "" && kind != tracking.KindVolume && kind != tracking.KindMute {
				return fmt.Errorf("invalid kind %q, want volume or mute", kind)
			}

			db, err := tracking.NewDatabase(tracking.DefaultDatabasePath())
			if err != nil {
				return fmt.Errorf("cannot open history database: %w", err)
			}
			defer db.Close()

			events, err := tracking.QueryEvents(db, &tracking.QueryFilter{
				Days:  days,
				Kind:  kind,
				Limit: limit,
			})
			if err != nil {
				return err
			}
			if len(events) == 0 {
				cmd.Println("no history")
				return nil
			}

			for _, e := range events {
				value := strconv.Itoa(e.Value)
				if e.Kind == tracking.KindMute {
					value = strconv.FormatBool(e.Value != 0)
				}
				cmd.Printf("%s  %-11s %-6s %s = %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Engine, e.Kind, e.Sink, value)
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "Only show events from the last N days")
	cmd.Flags().String("kind", "", "Filter by event kind (volume or mute)")
	cmd.Flags().Int("limit", 20, "Maximum number of events")
	return cmd
}

// newAutostartCommand manages the XDG autostart entry and keeps the
// persisted setting in sync with it.
func newAutostartCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off|status]",
		Short:     "Manage the session autostart entry",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			action := "status"
			if len(args) == 1 {
				action = args[0]
			}

			mgr, err := c.autostartManager()
			if err != nil {
				return err
			}

			switch action {
			case "status":
				state := "disabled"
				if mgr.IsEnabled() {
					state = "enabled"
				}
				cmd.Printf("autostart %s (%s)\n", state, mgr.Path())
				return nil
			case "on":
				if err := mgr.Enable(); err != nil {
					return err
				}
				cfg.UseAutostart = true
			case "off":
				if err := mgr.Disable(); err != nil {
					return err
				}
				cfg.UseAutostart = false
			default:
				return fmt.Errorf("unknown autostart action %q", action)
			}

			if err := c.configManager.SaveToFile(cfg, cfgPath); err != nil {
				return fmt.Errorf("autostart changed but config save failed: %w", err)
			}
			cmd.Printf("autostart %s\n", action)
			return nil
		},
	}
}

// withChannel runs fn against the configured channel and releases the
// engine afterwards.
func (c *CLI) withChannel(cmd *cobra.Command, fn func(audio.Device) error) error {
	cfg, _, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, dev, err := c.openChannel(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(dev)
}

func (c *CLI) autostartManager() (*autostart.Manager, error) {
	if c.autostartFactory != nil {
		return c.autostartFactory()
	}
	exe, err := executablePath()
	if err != nil {
		return nil, fmt.Errorf("cannot determine executable path: %w", err)
	}
	return autostart.NewManager(exe), nil
}
