// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoadConfig_HierarchicalYAML(t *testing.T) {
	yaml := `
bin_dir: /opt/gudrun/bin
project_dir: /data/water
silence_engine: false
workers: 3
history_db: /data/history.db
purge:
  enabled: false
  std_dev_lower: 5
  std_dev_upper: 7
  exclude_sample_and_can: true
iteration:
  strategy: density
  iterations: 4
composition:
  components: [H2O, D2O]
  total_molecules: 1
  samples: [mix]
  lower: 0.1
  upper: 0.9
  fallback_ratio: 0.5
  method: nelder-mead
batch:
  size: 10
  first_batch_size: 2
  separate_first_batch: true
  rel_tolerance: 0.05
  strategy: tweak-factor
`
	cfg, err := LoadConfig(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BinDir != "/opt/gudrun/bin" {
		t.Errorf("BinDir: got %q, want %q", cfg.BinDir, "/opt/gudrun/bin")
	}
	if cfg.ProjectDir != "/data/water" {
		t.Errorf("ProjectDir: got %q, want %q", cfg.ProjectDir, "/data/water")
	}
	if cfg.Silence() {
		t.Error("Silence: got true, want false")
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers: got %d, want 3", cfg.Workers)
	}
	if cfg.PurgeEnabled() {
		t.Error("PurgeEnabled: got true, want false")
	}
	opts := cfg.PurgeOptions()
	if opts.StdDevLower != 5 || opts.StdDevUpper != 7 || !opts.IgnoreBad || !opts.ExcludeSampleAndCan {
		t.Errorf("PurgeOptions: got %+v", opts)
	}
	if cfg.Iteration.Strategy != "density" || cfg.Iteration.Iterations != 4 {
		t.Errorf("Iteration: got %+v", cfg.Iteration)
	}
	if len(cfg.Composition.Components) != 2 || cfg.Composition.TotalMolecules != 1 {
		t.Errorf("Composition: got %+v", cfg.Composition)
	}
	if cfg.Composition.FallbackRatio == nil || *cfg.Composition.FallbackRatio != 0.5 {
		t.Errorf("Composition.FallbackRatio: got %v, want 0.5", cfg.Composition.FallbackRatio)
	}
	if cfg.Composition.MaxIterations != 10 {
		t.Errorf("Composition.MaxIterations: got %d, want default 10", cfg.Composition.MaxIterations)
	}
	if cfg.Batch.Size != 10 || cfg.Batch.FirstBatchSize != 2 || !cfg.Batch.SeparateFirstBatch || cfg.Batch.MaxIterations != 1 {
		t.Errorf("Batch: got %+v", cfg.Batch)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "gudrunctl.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers: got %d, want %d", cfg.Workers, runtime.NumCPU())
	}
	if !cfg.Silence() || !cfg.PurgeEnabled() {
		t.Errorf("Silence=%v PurgeEnabled=%v, want both true", cfg.Silence(), cfg.PurgeEnabled())
	}
	if cfg.Iteration.Strategy != "tweak-factor" || cfg.Iteration.Iterations != 5 {
		t.Errorf("Iteration: got %+v", cfg.Iteration)
	}
	if cfg.ProjectDir != "." {
		t.Errorf("ProjectDir: got %q, want %q", cfg.ProjectDir, ".")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBinDir, "/env/bin")
	t.Setenv(EnvProjectDir, "/env/project")
	t.Setenv(EnvWorkers, "7")
	cfg, err := LoadConfig(writeTemp(t, "bin_dir: /file/bin\nworkers: 2\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BinDir != "/env/bin" || cfg.ProjectDir != "/env/project" || cfg.Workers != 7 {
		t.Errorf("got BinDir=%q ProjectDir=%q Workers=%d", cfg.BinDir, cfg.ProjectDir, cfg.Workers)
	}
}

func TestLoadConfig_BadWorkers(t *testing.T) {
	t.Setenv(EnvWorkers, "many")
	if _, err := LoadConfig(""); err == nil {
		t.Error("LoadConfig accepted a non-numeric worker count")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeTemp(t, "workers: [1, 2\n")); err == nil {
		t.Error("LoadConfig accepted malformed YAML")
	}
}

func TestConfig_Strategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Iteration = IterationConfig{Strategy: "radius", Iterations: 2, Radius: "inner"}
	s, err := cfg.Strategy()
	if err != nil {
		t.Fatalf("Strategy: %v", err)
	}
	if s.Name() != "inner-radius" || s.Iterations() != 2 {
		t.Errorf("Strategy: got %s x%d", s.Name(), s.Iterations())
	}

	cfg.Iteration = IterationConfig{Strategy: "wavelength-subtraction", Iterations: 1}
	s, err = cfg.Strategy()
	if err != nil {
		t.Fatalf("Strategy: %v", err)
	}
	if s.Phases() != 2 {
		t.Errorf("Phases: got %d, want 2", s.Phases())
	}

	cfg.Iteration = IterationConfig{Strategy: "temperature", Iterations: 1}
	if _, err := cfg.Strategy(); err == nil {
		t.Error("Strategy accepted an unknown name")
	}
}

func TestCompositionConfig_SearchCenter(t *testing.T) {
	fallback := 0.5
	cc := CompositionConfig{
		Components: []string{"water"}, Lower: 0.1, Upper: 0.9,
		MaxIterations: 5, RelTolerance: 1e-3, FallbackRatio: &fallback,
	}
	gf := fixture(t)
	withWater(gf)
	s := gf.FindSample(sampleName)

	search, err := cc.Search(s)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if search.Bracket != [3]float64{0.1, 0.5, 0.9} {
		t.Errorf("Bracket: got %v, want midpoint center for out-of-range ratio", search.Bracket)
	}

	s.Composition.WeightedComponent("water").Ratio = 0.3
	search, err = cc.Search(s)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if search.Bracket[1] != 0.3 || search.Method != iterate.MethodGoldenSection {
		t.Errorf("Search: got bracket %v method %s", search.Bracket, search.Method)
	}
}
