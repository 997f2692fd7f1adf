// Package config loads the tuning knobs shared by the split engine and
// the witness/deploys encoders from a YAML file, following the
// teacher's practice of keeping configuration as a plain decodable
// struct rather than a flag-only surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named by the external interfaces: the
// split engine's batch pacing, the two Reed-Solomon data ratios, and
// the flat value inlining threshold.
type Config struct {
	// BatchSizeBytes bounds how many key/value bytes the split engine
	// copies per batch before committing and checking for cancellation.
	BatchSizeBytes int `yaml:"batch_size"`

	// BatchDelay is the pause between batches.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// WitnessDataRatio is the Reed-Solomon data fraction for chunk state
	// witness parts, in (0, 1].
	WitnessDataRatio float64 `yaml:"witness_data_ratio"`

	// DeploysDataRatio is the Reed-Solomon data fraction for contract
	// deploy parts, in (0, 1].
	DeploysDataRatio float64 `yaml:"deploys_data_ratio"`

	// InlineDiskValueThreshold is the byte size under which a flat
	// storage value is stored inline rather than as a ValueRef.
	InlineDiskValueThreshold int `yaml:"inline_disk_value_threshold"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		BatchSizeBytes:           4 << 20,
		BatchDelay:               100 * time.Millisecond,
		WitnessDataRatio:         0.6,
		DeploysDataRatio:         0.6,
		InlineDiskValueThreshold: 4000,
	}
}

// Load reads and decodes a YAML config file, applying Default() for
// any field the file does not set.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// rawConfig mirrors Config but carries BatchDelay as a parseable
// string ("250ms"), since yaml.v3 does not know how to decode a
// duration string directly into a time.Duration field.
type rawConfig struct {
	BatchSizeBytes           int     `yaml:"batch_size"`
	BatchDelay               string  `yaml:"batch_delay"`
	WitnessDataRatio         float64 `yaml:"witness_data_ratio"`
	DeploysDataRatio         float64 `yaml:"deploys_data_ratio"`
	InlineDiskValueThreshold int     `yaml:"inline_disk_value_threshold"`
}

// UnmarshalYAML decodes through rawConfig so batch_delay can be
// written as a duration string while every other field stays a plain
// scalar.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := rawConfig{
		BatchSizeBytes:           c.BatchSizeBytes,
		BatchDelay:               c.BatchDelay.String(),
		WitnessDataRatio:         c.WitnessDataRatio,
		DeploysDataRatio:         c.DeploysDataRatio,
		InlineDiskValueThreshold: c.InlineDiskValueThreshold,
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.BatchSizeBytes = raw.BatchSizeBytes
	c.WitnessDataRatio = raw.WitnessDataRatio
	c.DeploysDataRatio = raw.DeploysDataRatio
	c.InlineDiskValueThreshold = raw.InlineDiskValueThreshold

	if raw.BatchDelay != "" {
		d, err := time.ParseDuration(raw.BatchDelay)
		if err != nil {
			return fmt.Errorf("config: parsing batch_delay %q: %w", raw.BatchDelay, err)
		}
		c.BatchDelay = d
	}
	return nil
}

// Validate rejects a configuration that would make the data ratios or
// batch pacing meaningless.
func (c Config) Validate() error {
	if c.BatchSizeBytes <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSizeBytes)
	}
	if c.WitnessDataRatio <= 0 || c.WitnessDataRatio > 1 {
		return fmt.Errorf("config: witness_data_ratio must be in (0, 1], got %f", c.WitnessDataRatio)
	}
	if c.DeploysDataRatio <= 0 || c.DeploysDataRatio > 1 {
		return fmt.Errorf("config: deploys_data_ratio must be in (0, 1], got %f", c.DeploysDataRatio)
	}
	if c.InlineDiskValueThreshold < 0 {
		return fmt.Errorf("config: inline_disk_value_threshold must be non-negative, got %d", c.InlineDiskValueThreshold)
	}
	return nil
}
