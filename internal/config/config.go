package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Pipeline holds the run-wide settings that are not per-camera thresholds.
type Pipeline struct {
	// SampleFPS is the first-pass sampling rate in frames per second.
	SampleFPS float64 `toml:"sample_fps"`

	// Workers bounds how many videos are decoded concurrently.
	Workers int `toml:"workers"`

	// DBPath is the SQLite event sink location.
	DBPath string `toml:"db_path"`
}

// Config is the full run configuration loaded from one TOML file.
type Config struct {
	Pipeline Pipeline        `toml:"pipeline"`
	Packing  PackingProfile  `toml:"packing"`
	Cameras  []RegionProfile `toml:"cameras"`
}

// Default returns a Config with tuned defaults and no cameras.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			SampleFPS: 2,
			Workers:   2,
			DBPath:    "packlens.db",
		},
		Packing: DefaultPackingProfile(),
	}
}

// Load reads a TOML config file. Fields absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the whole configuration before a run starts.
func (c *Config) Validate() error {
	if c.Pipeline.SampleFPS <= 0 {
		return fmt.Errorf("pipeline: sample_fps must be positive, got %v", c.Pipeline.SampleFPS)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if err := c.Packing.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i := range c.Cameras {
		r := &c.Cameras[i]
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.CameraName] {
			return fmt.Errorf("config: duplicate camera %q", r.CameraName)
		}
		seen[r.CameraName] = true
	}
	return nil
}

// Camera returns the region profile for the named camera.
func (c *Config) Camera(name string) (*RegionProfile, bool) {
	for i := range c.Cameras {
		if c.Cameras[i].CameraName == name {
			return &c.Cameras[i], true
		}
	}
	return nil, false
}
