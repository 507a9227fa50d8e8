// Package config loads agentwatch settings from YAML files with
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tanmay-24/agentwatch/internal/alert"
)

// LoopConfig tunes the action-loop detector.
type LoopConfig struct {
	WindowSize     int `yaml:"window_size"`
	MaxRepeats     int `yaml:"max_repeats"`
	SequenceLength int `yaml:"sequence_length"`
}

// SpikeConfig tunes the resource-spike detector.
type SpikeConfig struct {
	Multiplier            float64       `yaml:"multiplier"`
	AbsoluteTokenLimit    int           `yaml:"absolute_token_limit"`
	AbsoluteDurationLimit time.Duration `yaml:"absolute_duration_limit"`
}

// Config holds all configurable monitor parameters.
type Config struct {
	DBPath              string         `yaml:"db_path"`
	Goal                string         `yaml:"goal"`
	CalibrationRuns     int            `yaml:"calibration_runs"`
	SimilarityThreshold float64        `yaml:"similarity_threshold"`
	Loop                LoopConfig     `yaml:"action_loop"`
	Spike               SpikeConfig    `yaml:"resource_spike"`
	Alerts              []alert.Config `yaml:"alerts"`
}

// DefaultConfig returns the built-in settings used when no file is
// present. Zero-valued detector tunables are filled in by the
// detectors themselves.
func DefaultConfig() *Config {
	return &Config{
		CalibrationRuns:     30,
		SimilarityThreshold: 0.5,
	}
}

// Load reads configuration from a YAML file. Empty path falls back to
// ~/.agentwatch/config.yaml. Missing file returns defaults. Invalid
// YAML returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".agentwatch", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
