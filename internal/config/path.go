package config

import (
	"os"
	"path/filepath"
)

const appDir = "flolog"

// DefaultDataDir returns the default data directory for the host: XDG data
// home, then /var/lib, then the macOS or Windows per-user location, then a
// dotdir in the home directory. Without a home directory it is "./data".
func DefaultDataDir() string {
	return dataDirFor(hostEnv{
		getenv: os.Getenv,
		home:   os.UserHomeDir,
		isDir:  isDir,
	})
}

// hostEnv is the slice of the host DefaultDataDir looks at.
type hostEnv struct {
	getenv func(string) string
	home   func() (string, error)
	isDir  func(string) bool
}

func dataDirFor(h hostEnv) string {
	homeDir, err := h.home()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := h.getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	switch {
	case h.isDir("/var/lib"):
		return filepath.Join("/var/lib", appDir)
	case h.isDir(filepath.Join(homeDir, "Library")):
		return filepath.Join(homeDir, "Library", "Application Support", appDir)
	case h.isDir(filepath.Join(homeDir, "AppData")):
		return filepath.Join(homeDir, "AppData", "Local", appDir)
	}
	return filepath.Join(homeDir, "."+appDir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
