// Package config provides user-level configuration for the console.
// The configuration is stored in ~/.config/neomind/config.yaml and contains
// the server address plus a few display preferences.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/neomind/console/pkg/paths"
)

// CurrentVersion is the current version of the config format
const CurrentVersion = "v1"

// DefaultServerURL is used when no server is configured.
const DefaultServerURL = "http://localhost:9500"

// Config represents the user-level console configuration
type Config struct {
	// Version is the config format version
	Version string `yaml:"version,omitempty"`
	// ServerURL is the base URL of the NeoMind server
	ServerURL string `yaml:"server_url,omitempty"`
	// Token is the bearer token passed to the server, if auth is enabled
	Token string `yaml:"token,omitempty"`
	// Session is the last active session id, restored on the next run
	Session string `yaml:"session,omitempty"`
	// HideThinking hides the reasoning channel in the transcript
	HideThinking bool `yaml:"hide_thinking,omitempty"`
}

// Path returns the path to the config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load loads the user configuration from the config file.
// A missing file yields a config with defaults, not an error.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(configPath string) (*Config, error) {
	config := &Config{ServerURL: DefaultServerURL}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.ServerURL == "" {
		config.ServerURL = DefaultServerURL
	}

	return config, nil
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	return c.saveTo(Path())
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Ensure version is always set to current version when saving
	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}
