// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package iterate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/gudrunctl/pkg/gudfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// stubResults reports the same result for every sample.
type stubResults struct {
	dir  string
	gud  gudfile.GudFile
	err  error
	read []string
}

func (r *stubResults) ReadGudFile(s *model.Sample) (*gudfile.GudFile, error) {
	r.read = append(r.read, s.Name)
	if r.err != nil {
		return nil, r.err
	}
	g := r.gud
	return &g, nil
}

func (r *stubResults) SampleFile(s *model.Sample, ext string) string {
	return filepath.Join(r.dir, s.Name, s.DataFiles.Stem()+ext)
}

func newRoot() *model.GudrunFile {
	water := model.Component{Name: "water", Elements: []model.Element{
		{Symbol: "H", MassNo: 0, Abundance: 2},
		{Symbol: "O", MassNo: 0, Abundance: 1},
	}}
	heavy := model.Component{Name: "heavy", Elements: []model.Element{
		{Symbol: "H", MassNo: 2, Abundance: 2},
		{Symbol: "O", MassNo: 0, Abundance: 1},
	}}
	return &model.GudrunFile{
		Instrument: model.Instrument{
			XMin: 0.1, XMax: 50, XStep: 0.02, ScaleSelection: model.ScaleQ,
			WavelengthMin: 0.05, WavelengthMax: 3.5, WavelengthStep: 0.01,
			SubWavelengthBinnedData: true,
		},
		Components: []model.Component{water, heavy},
		SampleBackgrounds: []model.SampleBackground{{
			Samples: []model.Sample{
				{
					Name:              "H2O",
					DataFiles:         model.DataFiles{Files: []string{"NIMROD00016608.raw"}},
					RunThisSample:     true,
					SampleTweakFactor: 1,
					Density:           0.1,
					TopHatW:           -0.01,
					Shape: model.Shape{
						UpstreamThickness: 0.05, DownstreamThickness: 0.05,
						InnerRadius: 0, OuterRadius: 0.3,
					},
					FileSelfScattering: "NIMROD00016608.msubw01",
					Composition: model.Composition{WeightedComponents: []model.WeightedComponent{
						{Component: water, Ratio: 1},
						{Component: heavy, Ratio: 1},
					}},
				},
				{
					Name:      "skipped",
					DataFiles: model.DataFiles{Files: []string{"NIMROD00016609.raw"}},
					Density:   0.5,
					TopHatW:   -0.02,
				},
			},
		}},
	}
}

func TestCoefficientStrategies_Law(t *testing.T) {
	res := &stubResults{gud: gudfile.GudFile{AverageLevelMergedDCS: 9, ExpectedDCS: 10}}
	cases := []struct {
		name string
		get  func(s *model.Sample) float64
	}{
		{"thickness", func(s *model.Sample) float64 { return s.TotalThickness() }},
		{"density", func(s *model.Sample) float64 { return s.Density }},
		{"outer-radius", func(s *model.Sample) float64 { return s.OuterRadius }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gf := newRoot()
			s := &gf.SampleBackgrounds[0].Samples[0]
			before := tc.get(s)
			st, err := ByName(tc.name, 1)
			require.NoError(t, err)

			require.NoError(t, st.Before(0, 0, gf, nil))
			assert.Equal(t, before, tc.get(s), "first run must not mutate")

			require.NoError(t, st.Before(0, 0, gf, res))
			assert.InDelta(t, before*0.9, tc.get(s), 1e-12)
			assert.Equal(t, 0.5, gf.SampleBackgrounds[0].Samples[1].Density, "non-running sample mutated")
		})
	}
}

func TestThickness_SplitsEvenly(t *testing.T) {
	gf := newRoot()
	s := &gf.SampleBackgrounds[0].Samples[0]
	s.UpstreamThickness, s.DownstreamThickness = 0.02, 0.08
	res := &stubResults{gud: gudfile.GudFile{AverageLevelMergedDCS: 12, ExpectedDCS: 10}}
	require.NoError(t, NewThickness(1).Before(0, 0, gf, res))
	assert.InDelta(t, 0.06, s.UpstreamThickness, 1e-12)
	assert.InDelta(t, 0.06, s.DownstreamThickness, 1e-12)
}

func TestCoefficient_ZeroExpected(t *testing.T) {
	gf := newRoot()
	res := &stubResults{gud: gudfile.GudFile{AverageLevelMergedDCS: 9, ExpectedDCS: 0}}
	assert.Error(t, NewDensity(1).Before(1, 0, gf, res))
}

func TestTweakFactor_UsesSuggestion(t *testing.T) {
	gf := newRoot()
	st := NewTweakFactor(2)
	assert.False(t, st.DefaultRun())
	res := &stubResults{gud: gudfile.GudFile{AverageLevelMergedDCS: 9, ExpectedDCS: 10, SuggestedTweakFactor: "1.1"}}
	for k := 0; k < 2; k++ {
		require.NoError(t, st.Before(k, 0, gf, nil))
		require.NoError(t, st.After(k, 0, gf, res))
		assert.Equal(t, 1.1, gf.SampleBackgrounds[0].Samples[0].SampleTweakFactor)
	}
	assert.Equal(t, []string{"H2O", "H2O"}, res.read)
}

func TestTweakFactor_ReadFailure(t *testing.T) {
	res := &stubResults{err: errors.New("no such file")}
	err := NewTweakFactor(1).After(0, 0, newRoot(), res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample H2O")
}

func TestWavelengthSubtraction_Phases(t *testing.T) {
	gf := newRoot()
	st := NewWavelengthSubtraction(1)
	require.Equal(t, 2, st.Phases())
	s := &gf.SampleBackgrounds[0].Samples[0]

	require.NoError(t, st.Before(0, PhaseWavelength, gf, nil))
	in := gf.Instrument
	assert.False(t, in.SubWavelengthBinnedData)
	assert.Equal(t, 0.05, in.XMin)
	assert.Equal(t, 3.5, in.XMax)
	assert.Equal(t, 0.01, in.XStep)
	assert.Equal(t, model.ScaleWavelength, in.ScaleSelection)
	assert.True(t, in.UseLogarithmicBinning)
	assert.Zero(t, s.TopHatW)
	assert.Equal(t, "NIMROD00016608.mint01", s.FileSelfScattering)
	assert.Equal(t, -0.02, gf.SampleBackgrounds[0].Samples[1].TopHatW)

	prev := &stubResults{dir: "/out/Iteration_1"}
	require.NoError(t, st.Before(0, PhaseQ, gf, prev))
	in = gf.Instrument
	assert.True(t, in.SubWavelengthBinnedData)
	assert.Equal(t, 0.1, in.XMin)
	assert.Equal(t, 50.0, in.XMax)
	assert.Equal(t, 0.02, in.XStep)
	assert.Equal(t, model.ScaleQ, in.ScaleSelection)
	assert.False(t, in.UseLogarithmicBinning)
	assert.Equal(t, -0.01, s.TopHatW)
	assert.Equal(t, filepath.Join("/out/Iteration_1", "H2O", "NIMROD00016608.msubw01"), s.FileSelfScattering)
}

func TestMachine_DefaultRunThenIterations(t *testing.T) {
	m := NewMachine(NewDensity(2))
	var steps []Step
	for {
		st, ok := m.Next()
		if !ok {
			break
		}
		steps = append(steps, st)
		m.Succeed()
	}
	assert.Equal(t, []Step{{Default: true}, {Iteration: 0}, {Iteration: 1}}, steps)
	assert.Equal(t, Done, m.State())
}

func TestMachine_Phases(t *testing.T) {
	m := NewMachine(NewWavelengthSubtraction(2))
	var steps []Step
	for st, ok := m.Next(); ok; st, ok = m.Next() {
		steps = append(steps, st)
		m.Succeed()
	}
	assert.Equal(t, []Step{
		{Default: true},
		{Iteration: 0, Phase: 0}, {Iteration: 0, Phase: 1},
		{Iteration: 1, Phase: 0}, {Iteration: 1, Phase: 1},
	}, steps)
}

func TestMachine_FailHalts(t *testing.T) {
	m := NewMachine(NewTweakFactor(3))
	st, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, Step{}, st)
	m.Succeed()
	m.Fail(errors.New("boom"))
	_, ok = m.Next()
	assert.False(t, ok)
	assert.Equal(t, Failed, m.State())
	assert.EqualError(t, m.Err(), "boom")
}

func TestByName_Unknown(t *testing.T) {
	_, err := ByName("temperature", 1)
	assert.Error(t, err)
	_, err = ByName("density", 0)
	assert.Error(t, err)
}

func TestCompositionSearch_Apply(t *testing.T) {
	gf := newRoot()
	s := &gf.SampleBackgrounds[0].Samples[0]
	c := &CompositionSearch{Components: []string{"water", "heavy"}, TotalMolecules: 3}
	require.NoError(t, c.Apply(s, 1))

	assert.Equal(t, 1.0, s.Composition.WeightedComponent("water").Ratio)
	assert.Equal(t, 2.0, s.Composition.WeightedComponent("heavy").Ratio)
	assert.Equal(t, []model.Element{
		{Symbol: "H", MassNo: 0, Abundance: 2},
		{Symbol: "O", MassNo: 0, Abundance: 3},
		{Symbol: "H", MassNo: 2, Abundance: 4},
	}, s.Composition.Elements)

	c.Components = []string{"ethanol"}
	assert.Error(t, c.Apply(s, 1))
}

func TestCost(t *testing.T) {
	assert.Equal(t, 0.0, Cost(&gudfile.GudFile{AverageLevelMergedDCS: 10, ExpectedDCS: 10}))
	assert.Equal(t, 4.0, Cost(&gudfile.GudFile{AverageLevelMergedDCS: 8, ExpectedDCS: 10}))
}

// stubCost mimics a reduction whose merged level is 5x and matches the
// expected level 10 within a narrow window around x = 2.
func stubCost(x float64) (float64, error) {
	actual := 5 * x
	if math.Abs(x-2) < 1e-3 {
		actual = 10
	}
	return Cost(&gudfile.GudFile{AverageLevelMergedDCS: actual, ExpectedDCS: 10}), nil
}

func TestCompositionSearch_ConvergesToZeroCost(t *testing.T) {
	for _, m := range []Method{MethodGoldenSection, MethodNelderMead} {
		t.Run(m.String(), func(t *testing.T) {
			fallback := 1.0
			c := &CompositionSearch{
				Components:    []string{"water"},
				Bracket:       [3]float64{1e-2, 1, 10},
				MaxIterations: 200,
				RelTolerance:  1e-6,
				FallbackRatio: &fallback,
				Method:        m,
			}
			res, err := c.Minimize(stubCost)
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.Zero(t, res.Cost)
			assert.InDelta(t, 2, res.X, 1e-3)
		})
	}
}

func TestCompositionSearch_FallbackWhenBudgetExhausted(t *testing.T) {
	fallback := 0.5
	c := &CompositionSearch{
		Components:    []string{"water"},
		Bracket:       [3]float64{1e-2, 1, 10},
		MaxIterations: 2,
		RelTolerance:  1e-9,
		FallbackRatio: &fallback,
	}
	res, err := c.Minimize(stubCost)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 0.5, res.X)
	assert.Equal(t, 4, res.Evaluations)
}

func TestCompositionSearch_Validate(t *testing.T) {
	fallback := 1.0
	ok := CompositionSearch{
		Components: []string{"a"}, Bracket: [3]float64{0, 1, 2},
		MaxIterations: 1, RelTolerance: 1e-3, FallbackRatio: &fallback,
	}
	require.NoError(t, ok.Validate())

	noFallback := ok
	noFallback.FallbackRatio = nil
	assert.Error(t, noFallback.Validate())

	three := ok
	three.Components = []string{"a", "b", "c"}
	assert.Error(t, three.Validate())

	unordered := ok
	unordered.Bracket = [3]float64{2, 1, 0}
	assert.Error(t, unordered.Validate())
}

func TestGoldenSection_CostError(t *testing.T) {
	calls := 0
	_, err := GoldenSection(func(float64) (float64, error) {
		calls++
		return 0, errors.New("engine failed")
	}, [3]float64{0, 1, 2}, 10, 1e-3)
	assert.EqualError(t, err, "engine failed")
	assert.Equal(t, 1, calls)
}

func TestGoldenSection_ConvergedOnLastIteration(t *testing.T) {
	cost := func(x float64) (float64, error) { return (x-2.1)*(x-2.1) + 1, nil }
	bracket := [3]float64{1e-2, 1, 10}

	free, err := GoldenSection(cost, bracket, 500, 1e-3)
	require.NoError(t, err)
	require.True(t, free.Converged)
	n := free.Iterations
	require.Greater(t, n, 1)

	res, err := GoldenSection(cost, bracket, n, 1e-3)
	require.NoError(t, err)
	assert.Equal(t, n, res.Iterations)
	assert.True(t, res.Converged, "tolerance met on the last allowed iteration")

	res, err = GoldenSection(cost, bracket, n-1, 1e-3)
	require.NoError(t, err)
	assert.False(t, res.Converged)
}
