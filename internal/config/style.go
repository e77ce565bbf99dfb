package config

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
)

var (
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	alterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F080")) // yellow

	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#CCCCCC"))
)

// warningOutput is where configuration warnings are printed
var warningOutput io.Writer = os.Stderr

type limitWarning struct {
	field string
	hint  string
}

// limitWarnings returns the autoclean thresholds that can never be reached
// before the trash itself refuses new files.
func limitWarnings(cfg Config) []limitWarning {
	var warnings []limitWarning

	if cfg.Autoclean.MaxCount > cfg.Trash.MaxCount {
		warnings = append(warnings, limitWarning{
			field: "autoclean.max_count",
			hint:  fmt.Sprintf("is above trash.max_count (%d)", cfg.Trash.MaxCount),
		})
	}
	if cfg.Autoclean.MaxSizeBytes() > cfg.Trash.MaxSizeBytes() {
		warnings = append(warnings, limitWarning{
			field: "autoclean.max_size",
			hint:  fmt.Sprintf("is above trash.max_size (%s)", units.HumanSize(float64(cfg.Trash.MaxSizeBytes()))),
		})
	}
	return warnings
}

func checkLimits(cfg Config) {
	for _, w := range limitWarnings(cfg) {
		printWarning(w.field, w.hint)
	}
}

func printWarning(fieldName, hint string) {
	messages := []string{
		warningStyle.Render("Warning: ") + fmt.Sprintf("Field '%s' %s", alterStyle.Render(fieldName), hint),
		infoStyle.Render("The matching autoclean pass will never run before the trash is full."),
	}

	fmt.Fprintln(warningOutput, containerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messages...)))
}
