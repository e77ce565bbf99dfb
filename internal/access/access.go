// Package access decides, item by item, whether an operation may touch a
// path. A denial means "skip this item", never a failure.
package access

import (
	"fmt"
	"log/slog"

	"al.essio.dev/pkg/shellescape"
)

// Operation is something done to a path.
type Operation int

const (
	Remove Operation = iota
	Restore
	Replace
	Clean
	Autoclean
)

func (o Operation) String() string {
	return [...]string{
		"remove",
		"restore",
		"replace",
		"clean",
		"autoclean",
	}[o]
}

// question is the prompt verb of an operation.
func (o Operation) question() string {
	return [...]string{
		"remove",
		"restore",
		"REPLACE",
		"clean (forever)",
		"autoclean files (forever) in",
	}[o]
}

// Controller allows or denies operations.
type Controller interface {
	Allow(op Operation, path string) bool
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Policy is the Controller used by the command line.
type Policy struct {
	// Interactive asks before every operation
	Interactive bool

	// DryRun logs every operation and denies it
	DryRun bool

	// AutoReplace replaces existing files without asking
	AutoReplace bool

	// Confirmer answers the questions of interactive mode
	Confirmer Confirmer
}

var _ Controller = Policy{}

// Allow implements Controller.
func (p Policy) Allow(op Operation, path string) bool {
	quoted := shellescape.Quote(path)

	if op == Replace {
		slog.Info(fmt.Sprintf("%s already exists", quoted))
		if !p.AutoReplace && !p.ask(op, quoted) {
			slog.Info(fmt.Sprintf("Replace %s denied", quoted))
			return false
		}
	} else if p.Interactive && !p.ask(op, quoted) {
		slog.Debug("denied by user", "op", op, "path", path)
		return false
	}

	if p.DryRun {
		slog.Info(fmt.Sprintf("%s %s", title(op), quoted), "dryrun", true)
		return false
	}
	slog.Info(fmt.Sprintf("%s %s", title(op), quoted))
	return true
}

func (p Policy) ask(op Operation, quoted string) bool {
	if p.Confirmer == nil {
		return false
	}
	return p.Confirmer.Confirm(fmt.Sprintf("Do you want to %s %s?", op.question(), quoted))
}

func title(op Operation) string {
	s := op.String()
	return string(s[0]-'a'+'A') + s[1:]
}

// AllowAll is a Controller that never denies. It logs nothing.
type AllowAll struct{}

// Allow implements Controller.
func (AllowAll) Allow(Operation, string) bool { return true }
