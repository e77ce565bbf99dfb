package debug

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/nxadm/tail"
	"github.com/vtrash/vtrash/internal/utils/log"
)

var (
	ErrLoggingDisabled = errors.New("logging is not enabled in config")
	ErrNoLogFile       = errors.New("no log file exists yet")
)

// Viewer prints the debug log written by previous runs.
type Viewer struct {
	Path    string
	Enabled bool

	// Follow reports whether live mode keeps waiting for new lines.
	// Defaults to stdout being a terminal.
	Follow func() bool
}

func (v Viewer) Logs(ctx context.Context, w io.Writer, live bool) error {
	if live {
		return v.tailLive(ctx, w)
	}
	return v.showExisting(w)
}

func (v Viewer) follow() bool {
	if v.Follow != nil {
		return v.Follow()
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// tailLive prints lines appended after it starts until ctx is done.
func (v Viewer) tailLive(ctx context.Context, w io.Writer) error {
	if !v.Enabled {
		return fmt.Errorf("%w: enable logging for live debugging", ErrLoggingDisabled)
	}
	if _, err := os.Stat(v.Path); os.IsNotExist(err) {
		return fmt.Errorf("%w: try running some commands with logging enabled", ErrNoLogFile)
	}

	follow := v.follow()
	t, err := tail.TailFile(v.Path, tail.Config{
		ReOpen: follow,
		Follow: follow,
		Poll:   true,
		Logger: tail.DiscardingLogger,
		Location: &tail.SeekInfo{
			Offset: 0,
			Whence: io.SeekEnd,
		},
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if follow {
		fmt.Fprintln(w, log.Highlight("live tail started"))
	}

	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}

func (v Viewer) showExisting(w io.Writer) error {
	f, err := os.Open(v.Path)
	if os.IsNotExist(err) {
		if !v.Enabled {
			return fmt.Errorf("%w: enable logging to create log files", ErrLoggingDisabled)
		}
		return fmt.Errorf("%w: try running some commands first", ErrNoLogFile)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}
