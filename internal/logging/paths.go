package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.searchsync/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync", "logs")
	}
	return filepath.Join(home, ".searchsync", "logs")
}

// DefaultLogPath returns the default daemon log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "searchsync.log")
}
