package env

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "vtrash"

var (
	VTRASH_CONFIG_PATH string

	VTRASH_LOG_PATH string
)

func init() {
	// https://github.com/charmbracelet/log/issues/35
	os.Setenv("CLICOLOR_FORCE", "1")

	VTRASH_CONFIG_PATH = lookup("VTRASH_CONFIG_PATH", filepath.Join(xdg.ConfigHome, appName, "config.yaml"))
	VTRASH_LOG_PATH = lookup("VTRASH_LOG_PATH", filepath.Join(xdg.DataHome, appName, "debug.log"))
}

func lookup(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
