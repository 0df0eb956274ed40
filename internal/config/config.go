// Package config holds all configuration types and loading logic for remindd.
// Config structure never shrinks — fields are only added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchedulerBackend selects the delay-queue implementation.
type SchedulerBackend string

const (
	// BackendMemory is the in-process min-heap scheduler. The schedule is
	// rebuilt from PENDING store records at startup — default.
	BackendMemory SchedulerBackend = "memory"
	// BackendDurable additionally mirrors the schedule into its own bbolt
	// file so it can re-arm without a store scan.
	BackendDurable SchedulerBackend = "durable"
)

// Config is the root configuration for a remindd server instance.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Limits    LimitsConfig    `yaml:"limits"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

// NodeConfig holds identity and network settings for this server instance.
type NodeConfig struct {
	// ID is a ULID string. Use "auto" to generate and persist one on first start.
	ID      string `yaml:"id"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// SchedulerConfig controls the delay queue.
type SchedulerConfig struct {
	Backend SchedulerBackend `yaml:"backend"`

	// CatchUp controls what bootstrap does with reminders whose fire time
	// elapsed while the process was down. True (default) enqueues them so
	// they fire immediately on restart; false leaves them PENDING and logs
	// each one for manual reconciliation.
	CatchUp bool `yaml:"catch_up"`
}

// AuthConfig controls API key authentication on the HTTP/WS surface.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LimitsConfig sets per-IP rate limiting applied to the HTTP surface.
type LimitsConfig struct {
	// MaxRate is requests per second per client IP.
	MaxRate float64 `yaml:"max_rate"`
	// Burst allows temporary spikes above MaxRate.
	Burst int `yaml:"burst"`
}

// WebhookConfig is one webhook target that receives a POST for every fired
// reminder. When Secret is set, requests carry an HMAC-SHA256 signature in the
// X-Remindd-Signature header.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:      "auto",
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: "./data",
		},
		Scheduler: SchedulerConfig{
			Backend: BackendMemory,
			CatchUp: true,
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Limits: LimitsConfig{
			MaxRate: 100,
			Burst:   200,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run remindd with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	REMINDD_AUTH_API_KEY  — sets auth.api_key and enables auth (auth.enabled = true)
//	REMINDD_DATA_DIR      — sets node.data_dir
//	REMINDD_PORT          — sets node.port
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("REMINDD_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("REMINDD_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("REMINDD_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Node.Port = p
		}
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Node.Port < 1 || c.Node.Port > 65535 {
		return errors.New("node.port must be between 1 and 65535")
	}
	if c.Node.DataDir == "" {
		return errors.New("node.data_dir must not be empty")
	}
	switch c.Scheduler.Backend {
	case BackendMemory, BackendDurable:
		// valid
	default:
		return errors.New(`scheduler.backend must be "memory" or "durable"`)
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	if c.Limits.MaxRate <= 0 {
		return errors.New("limits.max_rate must be positive")
	}
	if c.Limits.Burst < 1 {
		return errors.New("limits.burst must be at least 1")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhooks[%d].url must not be empty", i)
		}
	}
	return nil
}
