package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultSocketPath returns the platform default control-plane endpoint.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\dsfd`
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "dsfd.sock")
	}
	return filepath.Join(os.TempDir(), "dsfd.sock")
}
