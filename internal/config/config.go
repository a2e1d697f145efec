// Package config holds the YAML-backed configuration for the pipeline.
// Every value has a default; a config file overrides defaults and CLI flags
// override the file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration tree.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Extract  ExtractConfig  `yaml:"extract"`
}

// RegistryConfig configures the ROR registry client.
type RegistryConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-request HTTP timeout as a Go duration string.
	Timeout string `yaml:"timeout"`
	// Concurrency bounds in-flight resolutions, not raw HTTP requests.
	Concurrency int `yaml:"concurrency"`
	// BroadFallback enables the third, unrestricted lookup phase.
	BroadFallback bool `yaml:"broad_fallback"`
}

// ExtractConfig configures the dump extraction stage.
type ExtractConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:     "https://api.ror.org",
			Timeout:     "30s",
			Concurrency: 50,
		},
		Extract: ExtractConfig{
			Workers:   runtime.NumCPU(),
			BatchSize: 5000,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url must not be empty")
	}
	if c.Registry.Concurrency < 1 {
		return fmt.Errorf("registry.concurrency must be at least 1, got %d", c.Registry.Concurrency)
	}
	if _, err := time.ParseDuration(c.Registry.Timeout); err != nil {
		return fmt.Errorf("registry.timeout: %w", err)
	}
	return nil
}

// RequestTimeout parses the registry timeout, falling back to 30s when the
// value is unset or unparseable.
func (r RegistryConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
