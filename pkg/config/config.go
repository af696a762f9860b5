// Package config loads BPX's runtime configuration from an optional
// YAML file, applying sensible defaults, and exposes the pieces each
// downstream component needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level BPX configuration document.
type Config struct {
	Addr string    `yaml:"addr"`
	BPX  BpxConfig `yaml:"bpx"`
}

// BpxConfig bounds the State Manager's capacity/TTL policy and the
// Request Handler's diff-acceptance threshold.
type BpxConfig struct {
	MaxSessions            int      `yaml:"max_sessions"`
	MaxResourcesPerSession int      `yaml:"max_resources_per_session"`
	SessionTTL             Duration `yaml:"session_ttl"`
	MaxDiffSize            int      `yaml:"max_diff_size"`
	MinCompressionRatio    float64  `yaml:"min_compression_ratio"`
	CleanupInterval        Duration `yaml:"cleanup_interval"`
	CacheTTL               Duration `yaml:"cache_ttl"`
}

// Duration wraps time.Duration so it can be written in a config file as
// a human-readable string ("30m", "24h") instead of raw nanoseconds.
// yaml.v3 resolves a bare time.Duration field as a plain !!int scalar
// and rejects a suffixed string with a type error, so this type carries
// its own UnmarshalYAML/MarshalYAML pair.
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalYAML decodes a scalar node like "5m" or "24h" via
// time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("config: duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in time.ParseDuration form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		Addr: ":8090",
		BPX: BpxConfig{
			MaxSessions:            100_000,
			MaxResourcesPerSession: 1_000,
			SessionTTL:             Duration(24 * time.Hour),
			MaxDiffSize:            10 * 1024 * 1024,
			MinCompressionRatio:    0.2,
			CleanupInterval:        Duration(5 * time.Minute),
		},
	}
}

// Load reads a YAML configuration file and overlays it onto Default().
// A missing file is not an error: Load returns the defaults unchanged,
// for deployments that don't need a config file at all.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
