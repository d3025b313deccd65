package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration for the market daemon.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	DatabasePath   string `toml:"DatabasePath"`
	Env            string `toml:"Env"`
	AdminJWTSecret string `toml:"AdminJWTSecret"`

	Fees      Fees      `toml:"Fees"`
	Pauses    Pauses    `toml:"Pauses"`
	RateLimit RateLimit `toml:"RateLimit"`
	Quota     Quota     `toml:"Quota"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress: ":8545",
		DataDir:       "./market-data",
		DatabasePath:  "marketd.db",
		Env:           "dev",
		Fees: Fees{
			FeeBps: 250,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             20,
		},
		Quota: Quota{
			MaxRequestsPerEpoch: 120,
			EpochSeconds:        3600,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = defaults.Env
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = defaults.RateLimit.RequestsPerMinute
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.Quota.EpochSeconds == 0 {
		cfg.Quota.EpochSeconds = defaults.Quota.EpochSeconds
	}
	if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		cfg.Telemetry.Endpoint = defaults.Telemetry.Endpoint
	}
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
