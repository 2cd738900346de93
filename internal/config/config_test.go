package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"badgeforge/internal/config"
)

func TestDefaults(t *testing.T) {
	c := config.Default()
	if c.GitHub.BaseURL != "https://api.github.com" {
		t.Fatalf("base url = %q", c.GitHub.BaseURL)
	}
	if c.CloseDelay() != 30*time.Second {
		t.Fatalf("close delay = %v", c.CloseDelay())
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != config.Default().Server.Port {
		t.Fatalf("port = %d", c.Server.Port)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	path := config.Path(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := "workflow:\n  close_delay_seconds: 45\nserver:\n  port: 9000\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CloseDelay() != 45*time.Second {
		t.Fatalf("close delay = %v", c.CloseDelay())
	}
	if c.Server.Port != 9000 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	// absent fields keep their defaults
	if c.GitHub.BaseURL != "https://api.github.com" {
		t.Fatalf("base url = %q", c.GitHub.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty base url", func(c *config.Config) { c.GitHub.BaseURL = "" }},
		{"negative delay", func(c *config.Config) { c.Workflow.CloseDelaySeconds = -1 }},
		{"delay past close window", func(c *config.Config) { c.Workflow.CloseDelaySeconds = 241 }},
		{"zero port", func(c *config.Config) { c.Server.Port = 0 }},
		{"port overflow", func(c *config.Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := config.Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	if _, err := config.FromYAML([]byte("{not yaml")); err == nil {
		t.Fatal("expected parse error")
	}
}
