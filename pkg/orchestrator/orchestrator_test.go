// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/gudrunctl/pkg/engine"
	"github.com/mesh-intelligence/gudrunctl/pkg/gudrunfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/history"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

const sampleName = "H2O, Can N9"

func report(avg, expected float64, tweak string) string {
	return fmt.Sprintf(` stub.gud

 stub sample

 test user

 Wed Jan 14 10:00:00 2026

 Number density of this sample (atoms/A**3) =    0.1
 Corresponding density in g/cm**3 =    1.0
 Average scattering length of the sample (10**-12cm) =   -0.056
 Average scattering length squared of the sample (barns) =    0.0314
 Average square of the scattering length of the sample (barns) =    27.3
 Ratio of (coherent) single to interference =    0.00115
 Expected level of (self) DCS [b/sr/atom] =    %v
 Group  Qmin  Qmax  Level  Gradient
    1   0.50   40.0   9.1   0.3

 Average level of merged dcs is    %v b/sr/atom;
 Gradient of merged dcs:  0.63%% of average level

 The ratio of merged to expected DCS is 95.0 percent
 Suggested tweak factor:   %s
`, expected, avg, tweak)
}

// stubEngine writes a result report for every running sample instead of
// running the engines.
type stubEngine struct {
	avg      float64
	expected float64
	tweak    string
	// level overrides avg per sample when set.
	level func(s *model.Sample) float64
	// failAt fails the n-th reduction (1-based).
	failAt int
	// failFile fails any reduction that includes this data file.
	failFile string

	mu      sync.Mutex
	purges  int
	reduces int
	dirs    []string
}

func newStub() *stubEngine {
	return &stubEngine{avg: 9, expected: 10, tweak: "1.1"}
}

func (e *stubEngine) Purge(_ context.Context, _ *model.GudrunFile, _ engine.PurgeOptions, outDir string) (*engine.PurgeResult, error) {
	e.mu.Lock()
	e.purges++
	e.mu.Unlock()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &engine.PurgeResult{Dir: outDir, SpectraPurged: 12}, nil
}

func (e *stubEngine) Reduce(_ context.Context, gf *model.GudrunFile, _, outDir string) (*engine.OutputDir, error) {
	e.mu.Lock()
	e.reduces++
	n := e.reduces
	e.dirs = append(e.dirs, outDir)
	e.mu.Unlock()

	if n == e.failAt {
		return nil, &engine.RunError{Engine: engine.ReduceBinary, Reason: "Error reading file"}
	}
	od := &engine.OutputDir{Path: outDir, Samples: map[string]string{}}
	for _, s := range gf.RunningSamples() {
		if e.failFile != "" && slices.Contains(s.DataFiles.Files, e.failFile) {
			return nil, &engine.RunError{Engine: engine.ReduceBinary, Reason: e.failFile + " does not exist"}
		}
		avg := e.avg
		if e.level != nil {
			avg = e.level(s)
		}
		od.Samples[s.Name] = filepath.Join(outDir, s.Name)
		if err := os.MkdirAll(od.Samples[s.Name], 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(od.GudFile(s), []byte(report(avg, e.expected, e.tweak)), 0o644); err != nil {
			return nil, err
		}
	}
	return od, nil
}

func (e *stubEngine) reduceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reduces
}

// fixture loads the water configuration bound to a temporary project
// directory, with the sample reduced to one data file.
func fixture(t *testing.T) *model.GudrunFile {
	t.Helper()
	gf, err := gudrunfile.ParseFile("../gudrunfile/testdata/water.txt")
	require.NoError(t, err)
	gf.ProjectDir = t.TempDir()
	s := gf.FindSample(sampleName)
	require.NotNil(t, s)
	s.DataFiles.Files = s.DataFiles.Files[:1]
	return gf
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BinDir = "/nonexistent"
	cfg.Workers = 2
	return cfg
}

func TestIterate_TweakFactorScenario(t *testing.T) {
	gf := fixture(t)
	stub := newStub()
	o := New(testConfig(), WithEngine(stub))

	work, out, err := o.Iterate(context.Background(), gf, iterate.NewTweakFactor(2))
	require.NoError(t, err)

	assert.Equal(t, 1.1, work.FindSample(sampleName).SampleTweakFactor)
	assert.Equal(t, 1.0, gf.FindSample(sampleName).SampleTweakFactor, "input configuration mutated")
	assert.Equal(t, 1, stub.purges)
	require.Len(t, out.Runs, 2)
	base := filepath.Join(gf.ProjectDir, "Gudrun", "tweak-factor")
	assert.Equal(t, []string{filepath.Join(base, "Iteration_1"), filepath.Join(base, "Iteration_2")}, stub.dirs)
}

func TestIterate_CoefficientAfterDefaultRun(t *testing.T) {
	gf := fixture(t)
	stub := newStub()
	o := New(testConfig(), WithEngine(stub))
	before := gf.FindSample(sampleName).Density

	work, out, err := o.Iterate(context.Background(), gf, iterate.NewDensity(2))
	require.NoError(t, err)
	assert.Len(t, out.Runs, 3)
	assert.InDelta(t, before*0.9*0.9, work.FindSample(sampleName).Density, 1e-12)
	assert.Equal(t, filepath.Join(gf.ProjectDir, "Gudrun", "density", "Default"), stub.dirs[0])
}

func TestIterate_HaltsAtFailingIteration(t *testing.T) {
	gf := fixture(t)
	stub := newStub()
	stub.failAt = 3
	o := New(testConfig(), WithEngine(stub))

	_, out, err := o.Iterate(context.Background(), gf, iterate.NewDensity(4))
	require.Error(t, err)

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 1, oe.Iteration)
	assert.False(t, oe.Default)
	assert.Equal(t, StageReduce, oe.Stage)
	var re *engine.RunError
	assert.ErrorAs(t, err, &re)

	assert.Equal(t, 3, stub.reduceCount(), "reduction invoked after the failing iteration")
	assert.Len(t, out.Runs, 2)
}

func TestIterate_DefaultRunFailure(t *testing.T) {
	stub := newStub()
	stub.failAt = 1
	o := New(testConfig(), WithEngine(stub))
	_, _, err := o.Iterate(context.Background(), fixture(t), iterate.NewThickness(2))

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.True(t, oe.Default)
	assert.Contains(t, oe.Error(), "default run")
	assert.Equal(t, 1, stub.reduceCount())
}

func TestIterate_WavelengthSubtractionDirs(t *testing.T) {
	stub := newStub()
	o := New(testConfig(), WithEngine(stub))
	gf := fixture(t)
	_, out, err := o.Iterate(context.Background(), gf, iterate.NewWavelengthSubtraction(1))
	require.NoError(t, err)
	assert.Len(t, out.Runs, 3)
	base := filepath.Join(gf.ProjectDir, "Gudrun", "wavelength-subtraction")
	assert.Equal(t, filepath.Join(base, "Iteration_1", "Phase_2"), stub.dirs[2])
}

func TestRun_PurgeThenReduce(t *testing.T) {
	stub := newStub()
	o := New(testConfig(), WithEngine(stub))
	gf := fixture(t)
	_, out, err := o.Run(context.Background(), gf)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.purges)
	require.NotNil(t, out.Purge)
	assert.Equal(t, 12, out.Purge.SpectraPurged)
	assert.Equal(t, filepath.Join(gf.ProjectDir, "Gudrun", "Default"), out.OutputDir)
}

func TestRun_PurgeDisabled(t *testing.T) {
	stub := newStub()
	cfg := testConfig()
	disabled := false
	cfg.Purge.Enabled = &disabled
	o := New(cfg, WithEngine(stub))
	_, out, err := o.Run(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Zero(t, stub.purges)
	assert.Nil(t, out.Purge)
}

func TestRun_RejectsRunningSampleWithoutFiles(t *testing.T) {
	stub := newStub()
	gf := fixture(t)
	gf.FindSample(sampleName).DataFiles.Files = nil
	_, _, err := New(testConfig(), WithEngine(stub)).Run(context.Background(), gf)

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, StageValidate, oe.Stage)
	assert.Zero(t, stub.purges)
	assert.Zero(t, stub.reduceCount())
}

func TestRunContainersAsSamples(t *testing.T) {
	stub := newStub()
	gf := fixture(t)
	s := gf.FindSample(sampleName)
	require.Len(t, s.Containers, 1)
	s.Containers[0].RunAsSample = true
	work, _, err := New(testConfig(), WithEngine(stub)).RunContainersAsSamples(context.Background(), gf)
	require.NoError(t, err)
	var names []string
	for _, s := range work.RunningSamples() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"N9"}, names)
	assert.NotNil(t, gf.FindSample(sampleName), "input configuration mutated")
	assert.Equal(t, filepath.Join(gf.ProjectDir, "Gudrun", "ContainersAsSamples"), stub.dirs[0])
}

func TestRunPerFile(t *testing.T) {
	stub := newStub()
	gf, err := gudrunfile.ParseFile("../gudrunfile/testdata/water.txt")
	require.NoError(t, err)
	gf.ProjectDir = t.TempDir()
	work, _, err := New(testConfig(), WithEngine(stub)).RunPerFile(context.Background(), gf)
	require.NoError(t, err)
	assert.Len(t, work.RunningSamples(), 2)
}

// withWater gives the fixture sample a weighted water component.
func withWater(gf *model.GudrunFile) {
	water := model.Component{Name: "water", Elements: []model.Element{
		{Symbol: "H", Abundance: 2}, {Symbol: "O", Abundance: 1},
	}}
	gf.Components = []model.Component{water}
	s := gf.FindSample(sampleName)
	s.Composition.WeightedComponents = []model.WeightedComponent{{Component: water, Ratio: 1}}
}

func TestComposeRatios_ConvergesToZeroCost(t *testing.T) {
	gf := fixture(t)
	withWater(gf)
	stub := newStub()
	stub.level = func(s *model.Sample) float64 {
		x := s.Composition.WeightedComponent("water").Ratio
		if x > 1.999 && x < 2.001 {
			return 10
		}
		return 5 * x
	}
	cfg := testConfig()
	fallback := 1.0
	cfg.Composition = CompositionConfig{
		Components:    []string{"water"},
		Lower:         1e-2,
		Upper:         10,
		MaxIterations: 100,
		RelTolerance:  1e-6,
		FallbackRatio: &fallback,
	}

	work, out, err := New(cfg, WithEngine(stub)).ComposeRatios(context.Background(), gf)
	require.NoError(t, err)
	res := out.Searches[sampleName]
	assert.True(t, res.Converged)
	assert.Zero(t, res.Cost)
	assert.InDelta(t, 2, work.FindSample(sampleName).Composition.WeightedComponent("water").Ratio, 1e-3)
	assert.Equal(t, 1.0, gf.FindSample(sampleName).Composition.WeightedComponent("water").Ratio)
	assert.Equal(t, res.Evaluations, stub.reduceCount())
	assert.True(t, strings.HasSuffix(stub.dirs[0], filepath.Join("Composition", sampleName, "Evaluation_1")))
}

func TestComposeRatios_RequiresFallback(t *testing.T) {
	gf := fixture(t)
	withWater(gf)
	stub := newStub()
	cfg := testConfig()
	cfg.Composition.Components = []string{"water"}

	_, _, err := New(cfg, WithEngine(stub)).ComposeRatios(context.Background(), gf)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, StageValidate, oe.Stage)
	assert.Equal(t, sampleName, oe.Sample)
	assert.Zero(t, stub.purges)
	assert.Zero(t, stub.reduceCount())
}

func TestWithHistory_RecordsOperations(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	stub := newStub()
	stub.failAt = 2
	o := New(testConfig(), WithEngine(stub), WithHistory(store))
	_, _, err = o.Run(context.Background(), fixture(t))
	require.NoError(t, err)
	_, _, err = o.Run(context.Background(), fixture(t))
	require.Error(t, err)

	recs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, history.StatusFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, "Error reading file")
	assert.Equal(t, history.StatusSucceeded, recs[1].Status)
	assert.Equal(t, 1, recs[1].Runs)
}

func TestError_Message(t *testing.T) {
	e := newError(OpBatch, StageReduce, errors.New("boom"))
	e.Batch, e.Iteration = 1, 0
	assert.Equal(t, "batch: batch 2: iteration 1: reduce: boom", e.Error())
}
