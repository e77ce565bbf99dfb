// Package ui holds the interactive parts of the command line.
package ui

import (
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vtrash/vtrash/internal/ui/confirm"
)

// Prompter asks yes/no questions on a terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer
}

// NewPrompter returns a Prompter reading stdin and drawing on stderr.
func NewPrompter() Prompter {
	return Prompter{In: os.Stdin, Out: os.Stderr}
}

// Confirm asks prompt and reports whether the user accepted. Any failure of
// the terminal counts as a denial.
func (p Prompter) Confirm(prompt string) bool {
	m := confirm.New(prompt)

	program := tea.NewProgram(&m, tea.WithInput(p.In), tea.WithOutput(p.Out))
	if _, err := program.Run(); err != nil {
		slog.Error("confirm failed", "error", err)
		return false
	}

	return m.Selected().IsAccepted()
}
