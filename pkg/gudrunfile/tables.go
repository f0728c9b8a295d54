// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package gudrunfile

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// Per-entity line schemas. Order is the order lines appear in a section.

var instrumentFields = []field[model.Instrument]{
	{
		name: "instrument name", note: "Instrument name", keys: []string{"instrument name"},
		parse: func(e *model.Instrument, line string) error {
			v, err := model.ParseInstrument(tokens.First(line))
			if err != nil {
				return err
			}
			e.Name = v
			return nil
		},
		value: func(e *model.Instrument) string { return e.Name.String() },
	},
	stringField("gudrun input file directory", "Gudrun input file directory:", func(e *model.Instrument) *string { return &e.GudrunInputFileDir }, "gudrun input file directory"),
	stringField("data file directory", "Data file directory", func(e *model.Instrument) *string { return &e.DataFileDir }, "data file directory"),
	stringField("data file type", "Data file type", func(e *model.Instrument) *string { return &e.DataFileType }, "data file type"),
	stringField("detector calibration file", "Detector calibration file name", func(e *model.Instrument) *string { return &e.DetectorCalibrationFileName }, "detector calibration"),
	intField("phi column", "User table column number for phi values", func(e *model.Instrument) *int { return &e.ColumnNoPhiVals }, "phi values"),
	stringField("groups file", "Groups file name", func(e *model.Instrument) *string { return &e.GroupFileName }, "groups file"),
	stringField("deadtime constants file", "Deadtime constants file name", func(e *model.Instrument) *string { return &e.DeadtimeConstantsFileName }, "deadtime"),
	intListField("incident monitor spectra", "Spectrum number(s) for incident beam monitor", func(e *model.Instrument) *[]int { return &e.SpectrumNumbersForIncidentBeamMonitor }, "spectrum number", "incident beam monitor"),
	floatsField("monitor normalisation wavelength range", "Wavelength range [Å] for monitor normalisation", func(e *model.Instrument) []*float64 {
		return []*float64{&e.WavelengthMinMonitorNormalisation, &e.WavelengthMaxMonitorNormalisation}
	}, "monitor normalisation"),
	intListField("transmission monitor spectra", "Spectrum number(s) for transmission monitor", func(e *model.Instrument) *[]int { return &e.SpectrumNumbersForTransmissionMonitor }, "spectrum number", "transmission monitor"),
	floatField("incident monitor quiet count", "Incident monitor quiet count constant", func(e *model.Instrument) *float64 { return &e.IncidentMonitorQuietCountConst }, "incident monitor quiet count"),
	floatField("transmission monitor quiet count", "Transmission monitor quiet count constant", func(e *model.Instrument) *float64 { return &e.TransmissionMonitorQuietCountConst }, "transmission monitor quiet count"),
	intsField("spike analysis channels", "Channel numbers for spike analysis", func(e *model.Instrument) []*int {
		return []*int{&e.SpikeAnalysisChannelLo, &e.SpikeAnalysisChannelHi}
	}, "channel numbers", "spike analysis"),
	floatField("spike analysis acceptance factor", "Spike analysis acceptance factor", func(e *model.Instrument) *float64 { return &e.SpikeAnalysisAcceptanceFactor }, "spike analysis acceptance"),
	floatsField("wavelength range", "Wavelength range to use [Å] and step size", func(e *model.Instrument) []*float64 {
		return []*float64{&e.WavelengthMin, &e.WavelengthMax, &e.WavelengthStep}
	}, "wavelength range to use"),
	intField("monitor smooths", "No. of smooths on monitor", func(e *model.Instrument) *int { return &e.NoSmoothsOnMonitor }, "smooths on monitor"),
	{
		name: "x-scale", note: "Min, Max and step in x-scale (-ve for logarithmic binning)", keys: []string{"step in x-scale"},
		parse: func(e *model.Instrument, line string) error {
			v, err := tokens.Floats(line, 3)
			if err != nil {
				return err
			}
			e.XMin, e.XMax = v[0], v[1]
			e.UseLogarithmicBinning = v[2] < 0
			e.XStep = v[2]
			if e.UseLogarithmicBinning {
				e.XStep = -v[2]
			}
			return nil
		},
		value: func(e *model.Instrument) string {
			step := e.XStep
			if e.UseLogarithmicBinning {
				step = -step
			}
			return tokens.Join(e.XMin, e.XMax, step)
		},
	},
	groupingPanelBlock(),
	floatField("groups acceptance factor", "Groups acceptance factor", func(e *model.Instrument) *float64 { return &e.GroupsAcceptanceFactor }, "groups acceptance factor"),
	intField("merge power", "Merge power", func(e *model.Instrument) *int { return &e.MergePower }, "merge power"),
	boolField("subtract single atom scattering", "Subtract single atom scattering?", func(e *model.Instrument) *bool { return &e.SubSingleAtomScattering }, "single atom scattering"),
	{
		name: "merge weights", note: "By channel?", keys: []string{"by channel"},
		parse: func(e *model.Instrument, line string) error {
			i, err := tokens.Int(line)
			if err != nil {
				return err
			}
			e.MergeWeights, err = model.MergeWeightsFromOrdinal(i)
			return err
		},
		value: func(e *model.Instrument) string { return fmt.Sprint(int(e.MergeWeights)) },
	},
	floatField("incident flight path", "Incident flight path [m]", func(e *model.Instrument) *float64 { return &e.IncidentFlightPath }, "incident flight path"),
	intField("diagnostic spectrum", "Spectrum number to output diagnostic files", func(e *model.Instrument) *int { return &e.SpectrumNumberForOutputDiagnostics }, "diagnostic files"),
	stringField("neutron scattering parameters file", "Neutron scattering parameters file", func(e *model.Instrument) *string { return &e.NeutronScatteringParametersFile }, "neutron scattering parameters"),
	{
		name: "scale selection", note: "Scale selection: 1 = Q, 2 = d-space, 3 = wavelength, 4 = energy, 5 = TOF", keys: []string{"scale selection"},
		parse: func(e *model.Instrument, line string) error {
			i, err := tokens.Int(line)
			if err != nil {
				return err
			}
			e.ScaleSelection, err = model.ScalesFromLegacy(i)
			return err
		},
		value: func(e *model.Instrument) string { return fmt.Sprint(e.ScaleSelection.Legacy()) },
	},
	boolField("subtract wavelength-binned data", "Subtract wavelength-binned data?", func(e *model.Instrument) *bool { return &e.SubWavelengthBinnedData }, "wavelength-binned data"),
	stringField("gudrun start folder", "Folder where Gudrun started", func(e *model.Instrument) *string { return &e.GudrunStartFolder }, "folder where gudrun started"),
	stringField("startup file folder", "Folder containing the startup file", func(e *model.Instrument) *string { return &e.StartupFileFolder }, "folder containing the startup file"),
	floatField("logarithmic step size", "Logarithmic step size", func(e *model.Instrument) *float64 { return &e.LogarithmicStepSize }, "logarithmic step size"),
	boolField("hard group edges", "Hard group edges?", func(e *model.Instrument) *bool { return &e.HardGroupEdges }, "hard group edges"),
	optional(stringField("nexus definition file", "NeXus definition file", func(e *model.Instrument) *string { return &e.NxsDefinitionFile }, "nexus definition file")),
}

func optional[T any](f field[T]) field[T] {
	f.optional = true
	return f
}

const groupingPanelEnd = "0  0  0  0"

// groupingPanelBlock is the list of group/x-range/background rows closed by
// a row of zeros.
func groupingPanelBlock() field[model.Instrument] {
	return field[model.Instrument]{
		name: "grouping parameter panel",
		block: &block[model.Instrument]{
			parse: func(e *model.Instrument, lines []string, i int) (int, error) {
				e.GroupingParameterPanel = nil
				for i = skipBlank(lines, i); ; i++ {
					if i >= len(lines) {
						return 0, atLine(i, fmt.Errorf("%w: unterminated grouping parameter panel", ErrStructure))
					}
					v, err := tokens.Floats(lines[i], 4)
					if err != nil {
						return 0, atLine(i, err)
					}
					if v[0] == 0 {
						return i + 1, nil
					}
					e.GroupingParameterPanel = append(e.GroupingParameterPanel, model.GroupingParameter{
						Group: int(v[0]), XMin: v[1], XMax: v[2], BackgroundFactor: v[3],
					})
				}
			},
			render: func(e *model.Instrument) ([]string, error) {
				var out []string
				for _, g := range e.GroupingParameterPanel {
					out = append(out, tokens.Line(tokens.Join(g.Group, g.XMin, g.XMax, g.BackgroundFactor), "Group, Xmin, Xmax, Background factor"))
				}
				return append(out, tokens.Line(groupingPanelEnd, "0 0 0 0 to end input of specified values")), nil
			},
		},
	}
}

var beamFields = []field[model.Beam]{
	{
		name: "sample geometry", note: "Sample geometry", keys: []string{"sample geometry"},
		parse: func(e *model.Beam, line string) error {
			g, err := model.ParseGeometry(tokens.First(line))
			if err != nil {
				return err
			}
			if g == model.SameAsBeam {
				return fmt.Errorf("beam geometry must be %s or %s", model.FlatPlate, model.Cylindrical)
			}
			e.SampleGeometry = g
			return nil
		},
		value: func(e *model.Beam) string { return e.SampleGeometry.String() },
	},
	{
		name: "beam profile", keys: []string{"number of beam profile values"},
		block: &block[model.Beam]{
			parse: func(e *model.Beam, lines []string, i int) (int, error) {
				n, err := tokens.Int(lines[i])
				if err != nil {
					return 0, atLine(i, err)
				}
				if n > model.MaxBeamProfileValues {
					return 0, atLine(i, fmt.Errorf("%w: %d > %d", ErrBeamProfile, n, model.MaxBeamProfileValues))
				}
				if i+1 >= len(lines) {
					return 0, atLine(i, fmt.Errorf("%w: missing beam profile values line", ErrStructure))
				}
				v, err := tokens.Floats(lines[i+1], n)
				if err != nil {
					return 0, atLine(i+1, err)
				}
				e.BeamProfileValues = v
				return i + 2, nil
			},
			render: func(e *model.Beam) ([]string, error) {
				n := len(e.BeamProfileValues)
				if n > model.MaxBeamProfileValues {
					return nil, fmt.Errorf("%w: %d > %d", ErrBeamProfile, n, model.MaxBeamProfileValues)
				}
				return []string{
					tokens.Line(fmt.Sprint(n), "Number of beam profile values"),
					tokens.Line(tokens.JoinFloats(e.BeamProfileValues), "Beam profile values (Maximum of 50 allowed currently)"),
				}, nil
			},
		},
	},
	{
		name: "absorption steps", note: "Step size for absorption and m.s. calculation and no. of slices", keys: []string{"step size for absorption"},
		parse: func(e *model.Beam, line string) error {
			v, err := tokens.Floats(line, 3)
			if err != nil {
				return err
			}
			e.StepSizeAbsorption, e.StepSizeMS, e.NoSlices = v[0], v[1], int(v[2])
			return nil
		},
		value: func(e *model.Beam) string { return tokens.Join(e.StepSizeAbsorption, e.StepSizeMS, e.NoSlices) },
	},
	floatField("angular step", "Step in scattering angle to calculate corrections at: [deg.]", func(e *model.Beam) *float64 { return &e.AngularStepForCorrections }, "step in scattering angle"),
	floatsField("incident beam edges", "Incident beam edges relative to centre of sample [cm]", func(e *model.Beam) []*float64 {
		return []*float64{&e.IncidentBeamLeftEdge, &e.IncidentBeamRightEdge, &e.IncidentBeamBottomEdge, &e.IncidentBeamTopEdge}
	}, "incident beam edges"),
	floatsField("scattered beam edges", "Scattered beam edges relative to centre of sample [cm]", func(e *model.Beam) []*float64 {
		return []*float64{&e.ScatteredBeamLeftEdge, &e.ScatteredBeamRightEdge, &e.ScatteredBeamBottomEdge, &e.ScatteredBeamTopEdge}
	}, "scattered beam edges"),
	stringField("incident beam spectrum parameters", "Filename containing incident beam spectrum parameters", func(e *model.Beam) *string { return &e.FilenameIncidentBeamSpectrumParams }, "incident beam spectrum parameters"),
	floatField("overall background factor", "Overall background factor", func(e *model.Beam) *float64 { return &e.OverallBackgroundFactor }, "overall background factor"),
	floatField("sample dependent background factor", "Sample dependent background factor", func(e *model.Beam) *float64 { return &e.SampleDependantBackgroundFactor }, "sample dependent background factor"),
	floatField("shielding attenuation coefficient", "Shielding attenuation coefficient [per m per A]", func(e *model.Beam) *float64 { return &e.ShieldingAttenuationCoefficient }, "shielding attenuation"),
}

var normalisationFields = concat(
	[]field[model.Normalisation]{
		dataFilesBlock("normalisation data files", func(e *model.Normalisation) *model.DataFiles { return &e.DataFiles },
			func(*model.Normalisation) string { return "NORMALISATION" }),
		dataFilesBlock("normalisation background data files", func(e *model.Normalisation) *model.DataFiles { return &e.DataFilesBg },
			func(*model.Normalisation) string { return "NORMALISATION BACKGROUND" }),
		boolField("force Placzek calculation", "Force calculation of multiple scattering and absorption corrections?", func(e *model.Normalisation) *bool { return &e.ForceCalculationOfPlaczek }, "force calculation"),
		compositionBlock("Normalisation atomic composition", func(e *model.Normalisation) *model.Composition { return &e.Composition }),
	},
	shapeFields(func(e *model.Normalisation) *model.Shape { return &e.Shape }),
	[]field[model.Normalisation]{
		densityField(func(e *model.Normalisation) (*float64, *model.UnitsOfDensity) { return &e.Density, &e.DensityUnits }),
		floatField("Placzek temperature", "Temperature for normalisation Placzek correction", func(e *model.Normalisation) *float64 { return &e.TempForNormalisationPC }, "temperature"),
		crossSectionField(func(e *model.Normalisation) (*model.CrossSectionSource, *string) { return &e.TotalCrossSectionSource, &e.CrossSectionFilename }),
		stringField("differential cross section file", "Normalisation differential cross section filename", func(e *model.Normalisation) *string { return &e.DifferentialCrossSectionFile }, "differential cross section"),
		floatField("smoothed normalisation lower limit", "Lower limit on smoothed normalisation", func(e *model.Normalisation) *float64 { return &e.LowerLimitSmoothedNormalisation }, "lower limit on smoothed normalisation"),
		floatField("normalisation smoothing", "Normalisation degree of smoothing", func(e *model.Normalisation) *float64 { return &e.NormalisationDegreeSmoothing }, "degree of smoothing"),
		floatField("minimum signal to background", "Minimum normalisation signal to background ratio", func(e *model.Normalisation) *float64 { return &e.MinNormalisationSignalBR }, "signal to background"),
	},
)

var sampleBackgroundFields = []field[model.SampleBackground]{
	dataFilesBlock("sample background data files", func(e *model.SampleBackground) *model.DataFiles { return &e.DataFiles },
		func(*model.SampleBackground) string { return "SAMPLE BACKGROUND" }),
}

var sampleFields = concat(
	[]field[model.Sample]{
		dataFilesBlock("sample data files", func(e *model.Sample) *model.DataFiles { return &e.DataFiles },
			func(e *model.Sample) string { return "SAMPLE " + e.Name }),
		boolField("force corrections", "Force calculation of sample corrections?", func(e *model.Sample) *bool { return &e.ForceCalculationOfCorrections }, "force calculation"),
		compositionBlock("Sample atomic composition", func(e *model.Sample) *model.Composition { return &e.Composition }),
	},
	shapeFields(func(e *model.Sample) *model.Shape { return &e.Shape }),
	[]field[model.Sample]{
		densityField(func(e *model.Sample) (*float64, *model.UnitsOfDensity) { return &e.Density, &e.DensityUnits }),
		floatField("Placzek temperature", "Temperature for sample Placzek correction", func(e *model.Sample) *float64 { return &e.TempForSamplePC }, "temperature"),
		crossSectionField(func(e *model.Sample) (*model.CrossSectionSource, *string) { return &e.TotalCrossSectionSource, &e.CrossSectionFilename }),
		floatField("sample tweak factor", "Sample tweak factor", func(e *model.Sample) *float64 { return &e.SampleTweakFactor }, "tweak factor"),
		floatField("top hat width", "Top hat width (1/Å) for cleaning up Fourier Transform", func(e *model.Sample) *float64 { return &e.TopHatW }, "top hat width"),
		floatField("minimum FT radius", "Minimum radius for FT  [Å]", func(e *model.Sample) *float64 { return &e.MinRadFT }, "minimum radius for ft"),
		floatField("g(r) broadening", "g(r) broadening at r = 1A [A]", func(e *model.Sample) *float64 { return &e.GRBroadening }, "broadening at r"),
		resonanceBlock(),
		exponentialBlock(),
		floatField("normalisation correction factor", "Normalisation correction factor", func(e *model.Sample) *float64 { return &e.NormalisationCorrectionFactor }, "normalisation correction factor"),
		stringField("self scattering file", "Name of file containing self scattering as a function of wavelength [A]", func(e *model.Sample) *string { return &e.FileSelfScattering }, "self scattering"),
		{
			name: "normalise to", keys: []string{"normalise to"},
			parse: func(e *model.Sample, line string) error {
				i, err := tokens.Int(line)
				if err != nil {
					return err
				}
				e.NormaliseTo, err = model.NormalisationTypeFromOrdinal(i)
				return err
			},
			value:  func(e *model.Sample) string { return fmt.Sprint(int(e.NormaliseTo)) },
			noteFn: func(e *model.Sample) string { return "Normalise to:" + e.NormaliseTo.Label() },
		},
		floatField("maximum FT radius", "Maximum radius for FT [A]", func(e *model.Sample) *float64 { return &e.MaxRadFT }, "maximum radius for ft"),
		{
			name: "output units", keys: []string{"output units"},
			parse: func(e *model.Sample, line string) error {
				i, err := tokens.Int(line)
				if err != nil {
					return err
				}
				e.OutputUnits, err = model.OutputUnitsFromOrdinal(i)
				return err
			},
			value:  func(e *model.Sample) string { return fmt.Sprint(int(e.OutputUnits)) },
			noteFn: func(e *model.Sample) string { return "Output units: " + e.OutputUnits.Label() },
		},
		floatField("power for broadening", "Power for broadening function e.g. 0.5", func(e *model.Sample) *float64 { return &e.PowerForBroadening }, "power for broadening"),
		floatField("step size", "Step size [A]", func(e *model.Sample) *float64 { return &e.StepSize }, "step size"),
		boolField("run this sample", "Analyse this sample?", func(e *model.Sample) *bool { return &e.RunThisSample }, "analyse this sample"),
		floatsField("environment", "Sample environment scattering fraction and attenuation coefficient [per A]", func(e *model.Sample) []*float64 {
			return []*float64{&e.EnvironmentScatteringFraction, &e.EnvironmentAttenuationCoefficient}
		}, "scattering fraction"),
	},
)

const resonanceEnd = "to finish specifying wavelength range of resonance"

// resonanceBlock lists wavelength ranges closed by a "0  0" line.
func resonanceBlock() field[model.Sample] {
	return field[model.Sample]{
		name: "resonance values",
		block: &block[model.Sample]{
			parse: func(e *model.Sample, lines []string, i int) (int, error) {
				e.ResonanceValues = nil
				for i = skipBlank(lines, i); ; i++ {
					if i >= len(lines) {
						return 0, atLine(i, fmt.Errorf("%w: unterminated resonance values", ErrStructure))
					}
					if tokens.ContainsFold(lines[i], resonanceEnd) {
						return i + 1, nil
					}
					v, err := tokens.Floats(lines[i], 2)
					if err != nil {
						return 0, atLine(i, err)
					}
					e.ResonanceValues = append(e.ResonanceValues, model.Range{Min: v[0], Max: v[1]})
				}
			},
			render: func(e *model.Sample) ([]string, error) {
				var out []string
				for _, r := range e.ResonanceValues {
					out = append(out, tokens.Line(tokens.Join(r.Min, r.Max), "Min wavelength and max wavelength [A] of resonance"))
				}
				return append(out, tokens.Line("0  0", "0   0          "+resonanceEnd)), nil
			},
		},
	}
}

// exponentialBlock lists amplitude/decay pairs closed by a "*" line.
func exponentialBlock() field[model.Sample] {
	return field[model.Sample]{
		name: "exponential values",
		block: &block[model.Sample]{
			parse: func(e *model.Sample, lines []string, i int) (int, error) {
				e.ExponentialValues = nil
				for i = skipBlank(lines, i); ; i++ {
					if i >= len(lines) {
						return 0, atLine(i, fmt.Errorf("%w: unterminated exponential values", ErrStructure))
					}
					if tokens.First(lines[i]) == "*" {
						return i + 1, nil
					}
					v, err := tokens.Floats(lines[i], 2)
					if err != nil {
						return 0, atLine(i, err)
					}
					e.ExponentialValues = append(e.ExponentialValues, model.Exponential{Amplitude: v[0], Decay: v[1]})
				}
			},
			render: func(e *model.Sample) ([]string, error) {
				var out []string
				for _, x := range e.ExponentialValues {
					out = append(out, tokens.Line(tokens.Join(x.Amplitude, x.Decay, 0), "Exponential amplitude and decay [1/A]"))
				}
				return append(out, tokens.Line(compositionEnd, "* 0 0 to specify end of exponential parameter input")), nil
			},
		},
	}
}

var containerFields = concat(
	[]field[model.Container]{
		dataFilesBlock("container data files", func(e *model.Container) *model.DataFiles { return &e.DataFiles },
			func(e *model.Container) string { return "CONTAINER " + e.Name }),
		compositionBlock("Composition", func(e *model.Container) *model.Composition { return &e.Composition }),
	},
	shapeFields(func(e *model.Container) *model.Shape { return &e.Shape }),
	[]field[model.Container]{
		densityField(func(e *model.Container) (*float64, *model.UnitsOfDensity) { return &e.Density, &e.DensityUnits }),
		crossSectionField(func(e *model.Container) (*model.CrossSectionSource, *string) { return &e.TotalCrossSectionSource, &e.CrossSectionFilename }),
		floatField("tweak factor", "Tweak factor", func(e *model.Container) *float64 { return &e.TweakFactor }, "tweak factor"),
		floatsField("environment", "Sample environment scattering fraction and attenuation coefficient [per A]", func(e *model.Container) []*float64 {
			return []*float64{&e.EnvironmentScatteringFraction, &e.EnvironmentAttenuationCoefficient}
		}, "scattering fraction"),
	},
)

func concat[T any](parts ...[]field[T]) []field[T] {
	var out []field[T]
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// sectionTitle renders the header text for a named section.
func sectionTitle(keyword, name string) string {
	if name == "" {
		return keyword
	}
	return keyword + " " + strings.TrimSpace(name)
}
