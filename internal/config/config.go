package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models config.yml in the workspace dot-dir. Everything has a
// default; the file is optional.
type Config struct {
	GitHub struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"github"`
	Workflow struct {
		CloseDelaySeconds int `yaml:"close_delay_seconds"`
	} `yaml:"workflow"`
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`
}

// CloseDelay returns the fast-close wait as a duration.
func (c *Config) CloseDelay() time.Duration {
	return time.Duration(c.Workflow.CloseDelaySeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.GitHub.BaseURL = "https://api.github.com"
	c.Workflow.CloseDelaySeconds = 30
	c.Server.Port = 8377
	return c
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".badgeforge", "config.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document. Absent fields keep their
// defaults.
func FromYAML(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("config.github.base_url is required")
	}
	if c.Workflow.CloseDelaySeconds < 0 {
		return fmt.Errorf("config.workflow.close_delay_seconds must not be negative")
	}
	if c.Workflow.CloseDelaySeconds > 240 {
		// the achievement window is five minutes; leave margin for API calls
		return fmt.Errorf("config.workflow.close_delay_seconds must stay under the close window (max 240)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port must be a valid port")
	}
	return nil
}
