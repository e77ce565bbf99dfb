package trash

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vtrash/vtrash/internal/fs"
)

// Config holds the settings of a Store. It is a value: a Store only ever
// sees a new one through Reconfigure.
type Config struct {
	// Directory is the trash root. A leading "~" is expanded.
	Directory string

	// LockFile is the name of the lock marker inside Directory
	LockFile string

	// MaxCount is the number of files the trash may hold
	MaxCount int64

	// MaxSize is the number of bytes the trash may hold
	MaxSize int64

	// For log records
	RunID string
}

// NewDefaultConfig creates a new Config with default values
func NewDefaultConfig() Config {
	return Config{
		Directory: "~/.trash",
		LockFile:  "lock",
		MaxCount:  10_000_000,
		MaxSize:   1 << 30,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Directory == "" {
		return errors.New("trash directory must not be empty")
	}
	if c.LockFile == "" || c.LockFile != filepath.Base(c.LockFile) {
		return fmt.Errorf("lock file must be a plain file name: %q", c.LockFile)
	}
	if c.MaxCount < 0 || c.MaxSize < 0 {
		return errors.New("trash limits must not be negative")
	}
	return nil
}

// root returns the absolute trash directory
func (c Config) root() (string, error) {
	dir, err := fs.ExpandHome(c.Directory)
	if err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}
