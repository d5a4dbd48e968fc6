package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for the console.
//
// The NEOMIND_CONFIG_DIR environment variable overrides the default, which
// is useful in tests and containerized deployments. If the home directory
// cannot be determined, it falls back to a directory under the system
// temporary directory. This is a best-effort fallback and not intended to
// be a security boundary.
func GetConfigDir() string {
	if dir := os.Getenv("NEOMIND_CONFIG_DIR"); dir != "" {
		return filepath.Clean(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to temp directory
		return filepath.Clean(filepath.Join(os.TempDir(), ".neomind-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "neomind"))
}

// GetDataDir returns the user's data directory for the console (logs, caches).
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetDataDir() string {
	if dir := os.Getenv("NEOMIND_DATA_DIR"); dir != "" {
		return filepath.Clean(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".neomind"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".neomind"))
}

// GetLogFilePath returns the default log file path.
func GetLogFilePath() string {
	return filepath.Join(GetDataDir(), "logs", "neomind.log")
}
