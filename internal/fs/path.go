package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsUnsafePath checks if the given path is unsafe to remove
func IsUnsafePath(path string) bool {
	// "." and ".." are rejected before normalization hides them
	base := filepath.Base(path)
	if base == "." || base == ".." {
		return true
	}

	cleaned := filepath.Clean(path)
	if cleaned == string(filepath.Separator) || cleaned == filepath.VolumeName(cleaned)+string(filepath.Separator) {
		return true
	}

	return strings.HasPrefix(path, "//")
}

// ExpandHome replaces a leading "~" with the home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// PruneEmpty removes dir and then each of its parents while they are empty,
// stopping at (and never removing) stop.
func PruneEmpty(dir, stop string) error {
	dir = filepath.Clean(dir)
	stop = filepath.Clean(stop)

	for dir != stop && strings.HasPrefix(dir, stop+string(filepath.Separator)) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				dir = filepath.Dir(dir)
				continue
			}
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return err
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
