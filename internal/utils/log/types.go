package log

import (
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type (
	Level     = charmlog.Level
	Styles    = charmlog.Styles
	Formatter = charmlog.Formatter
)

const (
	DebugLevel     = charmlog.DebugLevel
	InfoLevel      = charmlog.InfoLevel
	WarnLevel      = charmlog.WarnLevel
	ErrorLevel     = charmlog.ErrorLevel
	ImportantLevel = WarnLevel + 1
)

const (
	TextFormatter = charmlog.TextFormatter
	JSONFormatter = charmlog.JSONFormatter
)

// LogLevelString returns the label printed for l
func LogLevelString(l Level) string {
	switch l {
	case ImportantLevel:
		return " IMPORTANT "
	default:
		return l.String()
	}
}

// ParseLevel maps a config level name to a Level, falling back to debug.
func ParseLevel(s string) Level {
	l, err := charmlog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return DebugLevel
	}
	return l
}
