package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
)

// validateSize validates the size format (e.g., "10MB", "1GB")
func validateSize(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return false
	}
	n, err := units.FromHumanSize(value)
	return err == nil && n >= 0
}

// expandPath expands "~" and environment variables, then makes the path
// absolute.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	path = os.ExpandEnv(path)

	return filepath.Abs(path)
}

// validateDirPath is a validation function for directory paths that works on
// any OS. The "dirpath" validator of go-playground/validator rejects some
// valid Windows paths such as `C:\Users\name\.dir\`.
//
// Empty strings are considered invalid. A path that exists must be a
// directory.
func validateDirPath(fl validator.FieldLevel) bool {
	path := strings.TrimSpace(fl.Field().String())
	if path == "" {
		return false
	}

	expanded, err := expandPath(path)
	if err != nil {
		return false
	}

	fi, err := os.Stat(expanded)
	if err == nil {
		return fi.IsDir()
	}
	return os.IsNotExist(err)
}
