package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for the archiver.
type Config struct {
	SourceURL        string         `yaml:"source_url"`
	Env              string         `yaml:"env"`
	Database         DatabaseConfig `yaml:"database"`
	Export           ExportConfig   `yaml:"export"`
	ReconnectBackoff Duration       `yaml:"reconnect_backoff"`
}

// DatabaseConfig selects the archive backend. Driver is "sqlite" or
// "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ExportConfig controls the periodic Parquet export of archived sales.
type ExportConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
}

// LoadConfig reads and validates the archiver configuration.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		cfg.SourceURL = "ws://localhost:8545/v1/events/ws"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.Database.Driver) == "" {
		cfg.Database.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = "market-archive.db"
	}
	if strings.TrimSpace(cfg.Export.Dir) == "" {
		cfg.Export.Dir = "./market-exports"
	}
	if cfg.Export.Interval.Duration <= 0 {
		cfg.Export.Interval.Duration = time.Hour
	}
	if cfg.ReconnectBackoff.Duration <= 0 {
		cfg.ReconnectBackoff.Duration = 5 * time.Second
	}
}

func (cfg *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "sqlite", "postgres":
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
