// Package config loads and saves the indexer's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the full set of values the indexer reads from its config file,
// overridable by CLI flags.
type Config struct {
	// Port the query server listens on.
	Port int `yaml:"port"`
	// HTTPBridge is the base URL of the upstream chain bridge.
	HTTPBridge string `yaml:"http-bridge"`
	// Network selects genesis parameters (mainnet, testnet, ...).
	Network string `yaml:"network"`
	// RefreshInterval is how often the sync loop polls the upstream tip.
	RefreshInterval time.Duration `yaml:"refresh-interval"`
	// Database is the directory the SQLite index file lives in.
	Database string `yaml:"database"`
	// EpochStabilityDepth is the number of slots from an epoch's start
	// within which a tip is still considered unstable.
	EpochStabilityDepth uint64 `yaml:"epoch-stability-depth"`
	// ReaderPoolSize bounds concurrent read connections to the store.
	ReaderPoolSize int `yaml:"connection-pool-size"`

	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the indexer's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:                8080,
		HTTPBridge:          "https://cardano-mainnet.bridge.example/",
		Network:             "mainnet",
		RefreshInterval:     5 * time.Second,
		Database:            "~/.cardano-txindexer",
		EpochStabilityDepth: 2160,
		ReaderPoolSize:      8,
		Logging:             LoggingConfig{Level: "info"},
	}
}

// ConfigPath returns the default config file path under dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), "config.yaml")
}

// LoadConfig reads the config file under dataDir, creating it with
// defaults if it does not yet exist. Fields absent from the file keep
// their DefaultConfig value, so a sparse user config only overrides what
// it names.
func LoadConfig(dataDir string) (*Config, error) {
	path := ConfigPath(dataDir)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("config: write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to path as YAML, with a header comment.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	header := "# cardano-txindexer configuration\n# generated automatically; edit freely\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
