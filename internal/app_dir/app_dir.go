package app_dir

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetAppDir returns the directory of the CLI data: logs and caches.
func GetAppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(homeDir, "AppData", "Local", "scriptflow"), nil
	}
	return filepath.Join(homeDir, ".scriptflow"), nil
}

// LogFile returns the path of the named log file in the app directory,
// the temporary directory is used when the home directory is unknown.
func LogFile(name string) string {
	dir, err := GetAppDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "scriptflow")
	}
	return filepath.Join(dir, "log", name+".log")
}
