package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the settings of the meltdownd process.
type Config struct {
	MetricsAddress    string        `yaml:"metrics-address,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval,omitempty"`
	ShutdownTimeout   time.Duration `yaml:"shutdown-timeout,omitempty"`
	Debug             bool          `yaml:"debug,omitempty"`
	Otel              bool          `yaml:"otel,omitempty"`
	OtelDir           string        `yaml:"otel-dir,omitempty"`
}

func New() *Config {
	return &Config{
		MetricsAddress:    "127.0.0.1:9042",
		HeartbeatInterval: 5 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// LoadFile overlays the non-empty values of a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file contents: %w", err)
	}

	var fileCfg Config
	if err := yaml.UnmarshalStrict(b, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse as yaml: %w", err)
	}

	if fileCfg.MetricsAddress != "" {
		c.MetricsAddress = fileCfg.MetricsAddress
	}
	if fileCfg.HeartbeatInterval != 0 {
		c.HeartbeatInterval = fileCfg.HeartbeatInterval
	}
	if fileCfg.ShutdownTimeout != 0 {
		c.ShutdownTimeout = fileCfg.ShutdownTimeout
	}
	if fileCfg.OtelDir != "" {
		c.OtelDir = fileCfg.OtelDir
	}
	c.Debug = c.Debug || fileCfg.Debug
	c.Otel = c.Otel || fileCfg.Otel
	return nil
}

func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout cannot be negative")
	}
	if c.OtelDir != "" && !c.Otel {
		return fmt.Errorf("otel directory set but otel is disabled")
	}
	return nil
}
