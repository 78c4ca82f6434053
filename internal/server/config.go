package server

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/docsync/docsync/internal/core/realtime"
)

// Config holds the WebSocket front-end configuration.
type Config struct {
	// Network settings
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`

	// Registry settings
	Realtime realtime.Config `yaml:"realtime"`

	// External persistence; disabled means memory-only retention
	Redis RedisConfig `yaml:"redis"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// RedisConfig configures the external message store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   4096,
		Realtime:     realtime.DefaultConfig(),
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		LogLevel: "info",
	}
}

// UnmarshalYAML decodes timeouts from "60s"-style strings. Absent fields
// keep their current values, so decoding over DefaultConfig is an overlay.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Host         string           `yaml:"host"`
		Port         int              `yaml:"port"`
		ReadTimeout  string           `yaml:"read_timeout"`
		WriteTimeout string           `yaml:"write_timeout"`
		BufferSize   int              `yaml:"buffer_size"`
		Realtime     *realtime.Config `yaml:"realtime"`
		Redis        *RedisConfig     `yaml:"redis"`
		LogLevel     string           `yaml:"log_level"`
	}{
		Realtime: &c.Realtime,
		Redis:    &c.Redis,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Host != "" {
		c.Host = raw.Host
	}
	if raw.Port > 0 {
		c.Port = raw.Port
	}
	if raw.BufferSize > 0 {
		c.BufferSize = raw.BufferSize
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &c.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &c.WriteTimeout},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return errors.Wrapf(err, "parse %s", field.name)
		}
		*field.dst = d
	}
	return nil
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(err, "parse config file")
	}
	return config, nil
}
