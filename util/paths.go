package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("WIFIPROV_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wifiprov-data")
	}
	return filepath.Join(home, ".wifiprov-data")
}

// GetProfileStorePath returns the file used by the simulated NIC to persist credential profiles
func GetProfileStorePath(dataDir string) string {
	if dataDir == "" {
		dataDir = GetDataDir()
	}
	return filepath.Join(dataDir, "profiles.yaml")
}

// EnsureDir creates dir (and parents) if missing
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
