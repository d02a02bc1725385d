// Package config loads engine configuration from TOML files. It exists for
// applications that prefer file-driven setup over functional options; the
// facade applies a loaded Config on top of its defaults.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config mirrors the tunable engine settings.
//
// Example file:
//
//	max_workers = 8
//	throttle_interval_ms = 250
//	global_manager = true
type Config struct {
	// MaxWorkers bounds the worker pool; zero means GOMAXPROCS.
	MaxWorkers int `toml:"max_workers"`

	// ThrottleIntervalMS is the coalescing window for write notifications
	// in milliseconds.
	ThrottleIntervalMS int `toml:"throttle_interval_ms"`

	// GlobalManager exposes the process-wide singleton accessor.
	GlobalManager bool `toml:"global_manager"`
}

// Default returns the baseline configuration: GOMAXPROCS workers, a 400ms
// notification window, no global singleton.
func Default() Config {
	return Config{ThrottleIntervalMS: 400}
}

// ThrottleInterval returns the notification window as a duration.
func (c Config) ThrottleInterval() time.Duration {
	return time.Duration(c.ThrottleIntervalMS) * time.Millisecond
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data on top of the defaults.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
