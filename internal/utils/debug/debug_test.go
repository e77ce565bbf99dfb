package debug

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestShowExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := (Viewer{Path: path, Enabled: true}).Logs(context.Background(), &buf, false); err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if got := buf.String(); got != "one\ntwo\n" {
		t.Errorf("Logs printed %q", got)
	}
}

func TestMissingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	tests := []struct {
		name    string
		enabled bool
		live    bool
		want    error
	}{
		{name: "full, disabled", enabled: false, live: false, want: ErrLoggingDisabled},
		{name: "full, enabled", enabled: true, live: false, want: ErrNoLogFile},
		{name: "live, disabled", enabled: false, live: true, want: ErrLoggingDisabled},
		{name: "live, enabled", enabled: true, live: true, want: ErrNoLogFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Viewer{Path: path, Enabled: tt.enabled}
			err := v.Logs(context.Background(), &bytes.Buffer{}, tt.live)
			if !errors.Is(err, tt.want) {
				t.Errorf("Logs() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLiveWithoutFollowStartsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	v := Viewer{Path: path, Enabled: true, Follow: func() bool { return false }}
	if err := v.Logs(context.Background(), &buf, true); err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("live mode printed existing lines: %q", buf.String())
	}
}
