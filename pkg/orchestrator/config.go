// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/gudrunctl/pkg/engine"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
)

// Environment overrides applied after the configuration file is read.
const (
	EnvBinDir     = "GUDRUN_BIN_DIR"
	EnvProjectDir = "GUDRUN_PROJECT_DIR"
	EnvWorkers    = "GUDRUN_WORKERS"
)

// Config holds all orchestrator settings. Callers either construct a
// Config in Go code and pass it to New(), or load one with LoadConfig.
type Config struct {
	// BinDir holds the purge and reduction engine binaries. Defaults to
	// engine.DefaultBinDir().
	BinDir string `yaml:"bin_dir"`

	// ProjectDir is used when the configuration being run is not bound to
	// a project (default ".").
	ProjectDir string `yaml:"project_dir"`

	// SilenceEngine suppresses the echo of engine stdout (default true).
	SilenceEngine *bool `yaml:"silence_engine"`

	// Workers bounds the batch worker pool (default runtime.NumCPU()).
	Workers int `yaml:"workers"`

	// HistoryDB is the operation ledger file. Empty disables the ledger.
	HistoryDB string `yaml:"history_db"`

	// LogToFile tees each operation's log into the Gudrun directory.
	LogToFile bool `yaml:"log_to_file"`

	Purge       PurgeConfig       `yaml:"purge"`
	Iteration   IterationConfig   `yaml:"iteration"`
	Composition CompositionConfig `yaml:"composition"`
	Batch       BatchConfig       `yaml:"batch"`
}

// PurgeConfig controls the purge step that precedes every operation.
type PurgeConfig struct {
	// Enabled runs the purge engine first (default true). When false the
	// existing Purge directory, if any, is reused.
	Enabled             *bool   `yaml:"enabled"`
	StdDevLower         float64 `yaml:"std_dev_lower"`
	StdDevUpper         float64 `yaml:"std_dev_upper"`
	IgnoreBad           *bool   `yaml:"ignore_bad"`
	ExcludeSampleAndCan bool    `yaml:"exclude_sample_and_can"`
}

// IterationConfig selects the strategy of an iterative run.
type IterationConfig struct {
	Strategy   string `yaml:"strategy"`
	Iterations int    `yaml:"iterations"`
	// Radius is "inner" or "outer" and only applies to strategy "radius".
	Radius string `yaml:"radius"`
}

// CompositionConfig describes a composition-ratio search.
type CompositionConfig struct {
	Components     []string `yaml:"components"`
	TotalMolecules float64  `yaml:"total_molecules"`
	// Samples names the samples to search. Empty means every running
	// sample holding the first component.
	Samples       []string `yaml:"samples"`
	Lower         float64  `yaml:"lower"`
	Upper         float64  `yaml:"upper"`
	MaxIterations int      `yaml:"max_iterations"`
	RelTolerance  float64  `yaml:"rel_tolerance"`
	FallbackRatio *float64 `yaml:"fallback_ratio"`
	Method        string   `yaml:"method"`
}

// BatchConfig describes a batch-processing run.
type BatchConfig struct {
	Size               int  `yaml:"size"`
	FirstBatchSize     int  `yaml:"first_batch_size"`
	SeparateFirstBatch bool `yaml:"separate_first_batch"`
	// MaxIterations is the iteration count of Strategy within each batch.
	MaxIterations int     `yaml:"max_iterations"`
	RelTolerance  float64 `yaml:"rel_tolerance"`
	// Strategy is optional; without one each batch is a single run.
	Strategy string `yaml:"strategy"`
}

// Silence returns true when engine output should be suppressed.
// Handles the nil-pointer case for the default (true).
func (c *Config) Silence() bool {
	if c.SilenceEngine == nil {
		return true
	}
	return *c.SilenceEngine
}

// PurgeEnabled reports whether operations purge first.
func (c *Config) PurgeEnabled() bool {
	return c.Purge.Enabled == nil || *c.Purge.Enabled
}

// PurgeOptions converts the purge section for the engine.
func (c *Config) PurgeOptions() engine.PurgeOptions {
	return engine.PurgeOptions{
		StdDevLower:         c.Purge.StdDevLower,
		StdDevUpper:         c.Purge.StdDevUpper,
		IgnoreBad:           c.Purge.IgnoreBad == nil || *c.Purge.IgnoreBad,
		ExcludeSampleAndCan: c.Purge.ExcludeSampleAndCan,
	}
}

// Strategy builds the configured iteration strategy.
func (c *Config) Strategy() (iterate.Strategy, error) {
	return strategyByName(c.Iteration.Strategy, c.Iteration.Iterations, c.Iteration.Radius)
}

func strategyByName(name string, iterations int, radius string) (iterate.Strategy, error) {
	if name == "radius" {
		r, err := iterate.ParseRadius(radius)
		if err != nil {
			return nil, err
		}
		if iterations < 1 {
			return nil, fmt.Errorf("iterations must be at least 1, got %d", iterations)
		}
		return iterate.NewRadius(r, iterations), nil
	}
	return iterate.ByName(name, iterations)
}

func (c *Config) applyDefaults() {
	if c.BinDir == "" {
		c.BinDir = engine.DefaultBinDir()
	}
	if c.ProjectDir == "" {
		c.ProjectDir = "."
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	defaults := engine.DefaultPurgeOptions()
	if c.Purge.StdDevLower == 0 {
		c.Purge.StdDevLower = defaults.StdDevLower
	}
	if c.Purge.StdDevUpper == 0 {
		c.Purge.StdDevUpper = defaults.StdDevUpper
	}
	if c.Iteration.Strategy == "" {
		c.Iteration.Strategy = "tweak-factor"
	}
	if c.Iteration.Iterations == 0 {
		c.Iteration.Iterations = 5
	}
	if c.Composition.MaxIterations == 0 {
		c.Composition.MaxIterations = 10
	}
	if c.Composition.RelTolerance == 0 {
		c.Composition.RelTolerance = 1e-2
	}
	if c.Composition.Lower == 0 {
		c.Composition.Lower = 1e-2
	}
	if c.Composition.Upper == 0 {
		c.Composition.Upper = 10
	}
	if c.Batch.MaxIterations == 0 {
		c.Batch.MaxIterations = 1
	}
}

// applyEnv overrides file settings from the environment.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBinDir); v != "" {
		c.BinDir = v
	}
	if v := os.Getenv(EnvProjectDir); v != "" {
		c.ProjectDir = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}
	return nil
}

// DefaultConfig returns a Config with every default applied and no
// environment overrides.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a configuration YAML file and returns a Config. A .env
// file in the working directory is loaded into the environment first. An
// empty path, or a path that does not exist, yields the defaults.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logf("config: %s not found, using defaults", path)
		case err != nil:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}
