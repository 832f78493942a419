// Package config loads schemapatch.toml and resolves named environments
// into concrete connection strings.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// EnvironmentConfig describes a single named environment from schemapatch.toml.
type EnvironmentConfig struct {
	URL string `toml:"url"`
}

type Config struct {
	// DefaultEnvironment is used when --env is not given.
	DefaultEnvironment string `toml:"default_environment"`

	// Plan is the default plan file, relative to the config file.
	Plan string `toml:"plan"`

	Environments map[string]EnvironmentConfig `toml:"environments"`

	ConfigFilePath string `toml:"-"`
}

// Load searches for schemapatch.toml starting at the working directory and
// walking upward, stopping at a project root marker (.git, go.mod,
// package.json). A missing file is not an error: connection strings can come
// from flags or dotenv files instead.
func Load() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dir := startDir
	for {
		configPath := filepath.Join(dir, "schemapatch.toml")
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, err
			}

			config.ConfigFilePath = configPath
			return &config, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// ConfigDir returns the directory holding the config file, or "" when no
// config file was found.
func (c *Config) ConfigDir() string {
	if c == nil || c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// PlanPath returns the configured default plan file resolved against the
// config directory.
func (c *Config) PlanPath() string {
	if c == nil || c.Plan == "" {
		return ""
	}
	if filepath.IsAbs(c.Plan) {
		return c.Plan
	}
	if dir := c.ConfigDir(); dir != "" {
		return filepath.Join(dir, c.Plan)
	}
	return c.Plan
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}
