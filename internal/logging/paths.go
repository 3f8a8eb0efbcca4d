package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.tradingrag/logs, or a temp-dir equivalent without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tradingrag", "logs")
	}
	return filepath.Join(home, ".tradingrag", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "tradingrag.log")
}
