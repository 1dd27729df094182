package cli

import (
	"os"

	"golang.org/x/term"
)

// TerminalDetector reports whether a file descriptor is attached to an
// interactive terminal. The status command swaps it out in tests, where
// no tty exists.
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector answers with golang.org/x/term.
type DefaultTerminalDetector struct{}

func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// isInteractiveTerminal decides between labeled output for humans and
// bare machine-readable output for pipes.
func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	return c.terminalDetector.IsTerminal(fd)
}

func stdoutFd() uintptr {
	return os.Stdout.Fd()
}
