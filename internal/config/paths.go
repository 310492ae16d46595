package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// Directory returns the per-user configuration directory.
//   - Windows: %APPDATA%\StudioShare
//   - Unix: ~/.config/studio-share
func Directory() (string, error) {
	return directoryFor(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func directoryFor(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	if goos == "windows" {
		appData := getenv("APPDATA")
		if appData == "" {
			profile := getenv("USERPROFILE")
			if profile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(profile, "AppData", "Roaming")
		}
		return filepath.Join(appData, "StudioShare"), nil
	}
	h, err := home()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".config", "studio-share"), nil
}

// DefaultPath returns the default transfer.conf location.
func DefaultPath() (string, error) {
	dir, err := Directory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transfer.conf"), nil
}

// HistoryPath returns the default location of the transfer history database.
func HistoryPath() (string, error) {
	dir, err := Directory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
