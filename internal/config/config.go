// Package config loads the attree server configuration from YAML with
// environment variable overrides (ATREE_*).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration unless --config
// points elsewhere.
const DefaultPath = ".attree.yml"

// Config is the top-level attree configuration.
type Config struct {
	// Port the HTTP/WebSocket server listens on.
	Port int `yaml:"port" koanf:"port"`
	// StaticDir holds the front-end assets served at /. Serving is
	// skipped when the directory does not exist.
	StaticDir string `yaml:"static_dir" koanf:"static_dir"`
	// DocsDir holds the markdown sources for the /help and /about pages.
	DocsDir string `yaml:"docs_dir" koanf:"docs_dir"`
	// AllowAllOrigins opens CORS and WebSocket origins up for dev use.
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	// MaxSnapshotBytes caps incoming WebSocket messages; oversized tree
	// snapshots are rejected at the transport.
	MaxSnapshotBytes int64 `yaml:"max_snapshot_bytes" koanf:"max_snapshot_bytes"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:             5000,
		StaticDir:        "public",
		DocsDir:          "docs",
		MaxSnapshotBytes: 1 << 20,
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ATREE_PORT -> port, etc.).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("ATREE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "ATREE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.MaxSnapshotBytes <= 0 {
		return fmt.Errorf("max_snapshot_bytes must be positive")
	}
	return nil
}
