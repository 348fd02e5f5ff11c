package cli

import (
	"log/slog"

	"golang.org/x/term"
)

// TerminalDetector abstracts terminal detection so tests can force
// either mode.
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector detects terminals with golang.org/x/term.
type DefaultTerminalDetector struct{}

func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	isTerminal := term.IsTerminal(fd)
	slog.Debug("terminal detection", "fd", fd, "is_terminal", isTerminal)
	return isTerminal
}

// isInteractiveTerminal reports whether fd is an interactive terminal,
// which selects human-readable output over JSON.
func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	return c.terminalDetector.IsTerminal(fd)
}
