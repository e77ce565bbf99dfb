// Package confirm is a single key yes/no bubble.
package confirm

import (
	"strings"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jimschubert/answer/colors"
)

// Decision is an enumeration of decisions available in the confirmation bubble
type Decision int

const (
	// Undecided indicates the state in which a user has not made a selection
	Undecided Decision = iota

	// Accepted indicates the user has provided a positive response
	Accepted

	// Denied indicates the user has provided a negative response
	Denied
)

// String satisfies the fmt.Stringer interface
func (d Decision) String() string {
	return [...]string{
		"undecided",
		"accepted",
		"denied",
	}[d]
}

// IsAccepted is a helper to indicate the positive confirmation state was selected
func (d Decision) IsAccepted() bool {
	return d == Accepted
}

// Styles holds relevant styles used for rendering
type Styles struct {
	PromptPrefix lipgloss.Style
	Prompt       lipgloss.Style
	Placeholder  lipgloss.Style
}

// Model represents the bubble tea model for the confirm bubble. The
// decision is taken on a single key press, enter picks the default.
type Model struct {
	PromptPrefix string
	Prompt       string

	AcceptedDecisionText string
	DeniedDecisionText   string

	// DefaultValue is selected by enter and reported when nothing was chosen
	DefaultValue Decision

	Styles Styles

	selected Decision
	done     bool
}

// New creates a new model with default settings.
func New(prompt string) Model {
	return Model{
		PromptPrefix:         "? ",
		Prompt:               prompt,
		AcceptedDecisionText: "y",
		DeniedDecisionText:   "n",
		DefaultValue:         Accepted,
		Styles: Styles{
			PromptPrefix: lipgloss.NewStyle().Foreground(lipgloss.Color(colors.PromptPrefix)),
			Placeholder:  lipgloss.NewStyle().Foreground(lipgloss.Color(colors.Placeholder)),
		},
	}
}

// Selected retrieves the default or user-selected Decision value
func (m *Model) Selected() Decision {
	return m.selected
}

// Value returns the Decision in human-readable form
func (m *Model) Value() string {
	switch m.selected {
	case Accepted:
		return m.AcceptedDecisionText
	case Denied:
		return m.DeniedDecisionText
	}
	return ""
}

// Init satisfies the tea.Model interface
func (m *Model) Init() tea.Cmd {
	m.selected = m.DefaultValue
	return nil
}

func (m *Model) decide(d Decision) (tea.Model, tea.Cmd) {
	m.selected = d
	m.done = true
	return m, tea.Quit
}

// Update satisfies the tea.Model interface
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m.decide(Denied)
	case tea.KeyEnter:
		return m.decide(m.DefaultValue)
	}

	s := key.String()
	if strings.ContainsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		return m, nil
	}
	switch strings.ToLower(s) {
	case strings.ToLower(m.AcceptedDecisionText[:1]):
		return m.decide(Accepted)
	case strings.ToLower(m.DeniedDecisionText[:1]):
		return m.decide(Denied)
	}
	return m, nil
}

// View satisfies the tea.Model interface
func (m *Model) View() string {
	var b strings.Builder
	if m.PromptPrefix != "" {
		b.WriteString(m.Styles.PromptPrefix.Inline(true).Render(m.PromptPrefix))
	}
	b.WriteString(m.Styles.Prompt.Inline(true).Render(m.Prompt))
	b.WriteRune(' ')

	if m.done {
		b.WriteString(m.Value())
		b.WriteRune('\n')
		return b.String()
	}

	yes, no := m.AcceptedDecisionText, m.DeniedDecisionText
	if m.DefaultValue == Accepted {
		yes = strings.ToUpper(yes)
	} else {
		no = strings.ToUpper(no)
	}
	b.WriteString(m.Styles.Placeholder.Render(yes + "/" + no))
	return b.String()
}
