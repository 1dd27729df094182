package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// executablePath is swappable for tests.
var executablePath = os.Executable

// newMixerCommand launches the configured external mixer.
func newMixerCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "mixer",
		Short: "Launch the configured external mixer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.MixerCommand == "" {
				return fmt.Errorf("no mixer_command configured")
			}
			return spawnDetachedMixer(cfg.MixerCommand)
		},
	}
}

// spawnDetachedMixer starts the mixer command and releases it so it outlives
// this process. The command string is split on whitespace; quoting is not
// supported.
func spawnDetachedMixer(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty mixer command")
	}

	child := exec.Command(fields[0], fields[1:]...)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil

	slog.Info("spawning detached mixer", "command", fields[0], "args", fields[1:])

	if err := child.Start(); err != nil {
		return fmt.Errorf("cannot start mixer %q: %w", fields[0], err)
	}

	// Release the child so it isn't reaped when we exit.
	if err := child.Process.Release(); err != nil {
		slog.Warn("failed to release mixer process", "error", err)
	}
	return nil
}
