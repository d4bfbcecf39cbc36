// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Allocate AllocateConfig `toml:"allocate"`
	Optimize OptimizeConfig `toml:"optimize"`
}

// AllocateConfig maps settings shared by the allocation commands.
type AllocateConfig struct {
	Profile *string `toml:"profile"`
	Actions *string `toml:"actions"`
}

// OptimizeConfig maps annealing schedule settings.
type OptimizeConfig struct {
	Seed          *int64   `toml:"seed"`
	InitialTemp   *float64 `toml:"initial-temp"`
	CoolingRate   *float64 `toml:"cooling-rate"`
	MinTemp       *float64 `toml:"min-temp"`
	MaxIterations *int     `toml:"max-iterations"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
