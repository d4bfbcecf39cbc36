// Package config locates keyfit's files under the XDG base directories.
package config

import (
	"os"
	"path/filepath"
)

const appDir = "keyfit"

// baseDir resolves one XDG base directory: the environment override when
// set, otherwise the given segments under the user's home. With no
// resolvable home the current directory serves as a last resort.
func baseDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func configDir() string {
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), appDir)
}

func dataDir() string {
	return filepath.Join(baseDir("XDG_DATA_HOME", ".local", "share"), appDir)
}

// DefaultPresetDir returns the default directory for profile presets.
func DefaultPresetDir() string {
	return filepath.Join(configDir(), "presets")
}

// DefaultActionDir returns the default directory for action sets.
func DefaultActionDir() string {
	return filepath.Join(configDir(), "actions")
}

// DefaultDBPath returns the default path for the SQLite run database.
func DefaultDBPath() string {
	return filepath.Join(dataDir(), "keyfit.db")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}
