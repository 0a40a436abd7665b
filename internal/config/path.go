package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the per-user directory where a persisted journal
// lives when no directory is given. It falls back to ./data without a home
// directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pubsub")
	}

	// macOS: ~/Library/Application Support/PubSub
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "PubSub")
	}

	// Windows: %USERPROFILE%/AppData/Local/PubSub
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "PubSub")
	}

	return filepath.Join(homeDir, ".pubsub")
}

// DefaultJournalDir is DefaultDataDir()/journal.
func DefaultJournalDir() string {
	return filepath.Join(DefaultDataDir(), "journal")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
