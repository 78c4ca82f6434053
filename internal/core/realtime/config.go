package realtime

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds registry configuration. Zero fields are replaced with the
// defaults from DefaultConfig when the manager is built.
type Config struct {
	// Admission settings
	RoomCapacity int `yaml:"room_capacity"`

	// Offline queue settings
	QueueLimit int `yaml:"queue_limit"`

	// Background maintenance
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	StaleThreshold    time.Duration `yaml:"stale_threshold"`

	// Metrics
	MetricsWindow time.Duration `yaml:"metrics_window"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		RoomCapacity:      100,
		QueueLimit:        100,
		HeartbeatInterval: 30 * time.Second,
		CleanupInterval:   5 * time.Minute,
		StaleThreshold:    30 * time.Minute,
		MetricsWindow:     5 * time.Minute,
	}
}

// UnmarshalYAML decodes durations from "30s"-style strings. Absent fields
// keep whatever value the target already holds, so decoding over defaults
// works as an overlay.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		RoomCapacity      int    `yaml:"room_capacity"`
		QueueLimit        int    `yaml:"queue_limit"`
		HeartbeatInterval string `yaml:"heartbeat_interval"`
		CleanupInterval   string `yaml:"cleanup_interval"`
		StaleThreshold    string `yaml:"stale_threshold"`
		MetricsWindow     string `yaml:"metrics_window"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.RoomCapacity > 0 {
		c.RoomCapacity = raw.RoomCapacity
	}
	if raw.QueueLimit > 0 {
		c.QueueLimit = raw.QueueLimit
	}
	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &c.HeartbeatInterval},
		{"cleanup_interval", raw.CleanupInterval, &c.CleanupInterval},
		{"stale_threshold", raw.StaleThreshold, &c.StaleThreshold},
		{"metrics_window", raw.MetricsWindow, &c.MetricsWindow},
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

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RoomCapacity <= 0 {
		c.RoomCapacity = defaults.RoomCapacity
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = defaults.QueueLimit
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaults.CleanupInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = defaults.StaleThreshold
	}
	if c.MetricsWindow <= 0 {
		c.MetricsWindow = defaults.MetricsWindow
	}
	return c
}
