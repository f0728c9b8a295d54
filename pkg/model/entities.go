// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package model holds the configuration object graph that the legacy
// input format and the YAML project format both encode: one Instrument,
// one Beam, one Normalisation and an ordered list of sample backgrounds,
// each owning samples that in turn own containers.
package model

import (
	"path/filepath"
	"strings"
)

// MaxBeamProfileValues is the largest beam profile the legacy format accepts.
const MaxBeamProfileValues = 50

// DataFiles is an ordered list of raw data filenames. Name labels the
// owning entity in diagnostics and in the legacy annotation text.
type DataFiles struct {
	Name         string   `yaml:"name"`
	Files        []string `yaml:"dataFiles"`
	PeriodNumber int      `yaml:"periodNumber"`
}

// Clone returns a deep copy of d.
func (d DataFiles) Clone() DataFiles {
	d.Files = append([]string(nil), d.Files...)
	return d
}

// Len returns the number of files.
func (d DataFiles) Len() int { return len(d.Files) }

// Stem returns the first filename without directory or extension, which
// the reduction engine uses to name its outputs.
func (d DataFiles) Stem() string {
	if len(d.Files) == 0 {
		return ""
	}
	base := filepath.Base(d.Files[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GroupingParameter is one row of the instrument's grouping parameter panel.
type GroupingParameter struct {
	Group            int     `yaml:"group"`
	XMin             float64 `yaml:"xMin"`
	XMax             float64 `yaml:"xMax"`
	BackgroundFactor float64 `yaml:"backgroundFactor"`
}

// Instrument describes the diffractometer, its calibration files and the
// binning of the reduction.
type Instrument struct {
	Name                                  Instruments         `yaml:"name"`
	GudrunInputFileDir                    string              `yaml:"GudrunInputFileDir"`
	DataFileDir                           string              `yaml:"dataFileDir"`
	DataFileType                          string              `yaml:"dataFileType"`
	DetectorCalibrationFileName           string              `yaml:"detectorCalibrationFileName"`
	ColumnNoPhiVals                       int                 `yaml:"columnNoPhiVals"`
	GroupFileName                         string              `yaml:"groupFileName"`
	DeadtimeConstantsFileName             string              `yaml:"deadtimeConstantsFileName"`
	SpectrumNumbersForIncidentBeamMonitor []int               `yaml:"spectrumNumbersForIncidentBeamMonitor"`
	WavelengthMinMonitorNormalisation     float64             `yaml:"wavelengthMinMonitorNormalisation"`
	WavelengthMaxMonitorNormalisation     float64             `yaml:"wavelengthMaxMonitorNormalisation"`
	SpectrumNumbersForTransmissionMonitor []int               `yaml:"spectrumNumbersForTransmissionMonitor"`
	IncidentMonitorQuietCountConst        float64             `yaml:"incidentMonitorQuietCountConst"`
	TransmissionMonitorQuietCountConst    float64             `yaml:"transmissionMonitorQuietCountConst"`
	SpikeAnalysisChannelLo                int                 `yaml:"spikeAnalysisChannelLo"`
	SpikeAnalysisChannelHi                int                 `yaml:"spikeAnalysisChannelHi"`
	SpikeAnalysisAcceptanceFactor         float64             `yaml:"spikeAnalysisAcceptanceFactor"`
	WavelengthMin                         float64             `yaml:"wavelengthMin"`
	WavelengthMax                         float64             `yaml:"wavelengthMax"`
	WavelengthStep                        float64             `yaml:"wavelengthStep"`
	NoSmoothsOnMonitor                    int                 `yaml:"NoSmoothsOnMonitor"`
	XMin                                  float64             `yaml:"XMin"`
	XMax                                  float64             `yaml:"XMax"`
	XStep                                 float64             `yaml:"XStep"`
	UseLogarithmicBinning                 bool                `yaml:"useLogarithmicBinning"`
	GroupingParameterPanel                []GroupingParameter `yaml:"groupingParameterPanel"`
	GroupsAcceptanceFactor                float64             `yaml:"groupsAcceptanceFactor"`
	MergePower                            int                 `yaml:"mergePower"`
	SubSingleAtomScattering               bool                `yaml:"subSingleAtomScattering"`
	MergeWeights                          MergeWeights        `yaml:"mergeWeights"`
	IncidentFlightPath                    float64             `yaml:"incidentFlightPath"`
	SpectrumNumberForOutputDiagnostics    int                 `yaml:"spectrumNumberForOutputDiagnosticFiles"`
	NeutronScatteringParametersFile       string              `yaml:"neutronScatteringParametersFile"`
	ScaleSelection                        Scales              `yaml:"scaleSelection"`
	SubWavelengthBinnedData               bool                `yaml:"subWavelengthBinnedData"`
	GudrunStartFolder                     string              `yaml:"GudrunStartFolder"`
	StartupFileFolder                     string              `yaml:"startupFileFolder"`
	LogarithmicStepSize                   float64             `yaml:"logarithmicStepSize"`
	HardGroupEdges                        bool                `yaml:"hardGroupEdges"`
	NxsDefinitionFile                     string              `yaml:"nxsDefinitionFile"`
}

// Clone returns a deep copy of i.
func (i Instrument) Clone() Instrument {
	i.SpectrumNumbersForIncidentBeamMonitor = append([]int(nil), i.SpectrumNumbersForIncidentBeamMonitor...)
	i.SpectrumNumbersForTransmissionMonitor = append([]int(nil), i.SpectrumNumbersForTransmissionMonitor...)
	i.GroupingParameterPanel = append([]GroupingParameter(nil), i.GroupingParameterPanel...)
	return i
}

// Beam describes the incident beam and absorption/multiple-scattering
// integration parameters.
type Beam struct {
	SampleGeometry                     Geometry  `yaml:"sampleGeometry"`
	BeamProfileValues                  []float64 `yaml:"beamProfileValues"`
	StepSizeAbsorption                 float64   `yaml:"stepSizeAbsorption"`
	StepSizeMS                         float64   `yaml:"stepSizeMS"`
	NoSlices                           int       `yaml:"noSlices"`
	AngularStepForCorrections          float64   `yaml:"angularStepForCorrections"`
	IncidentBeamLeftEdge               float64   `yaml:"incidentBeamLeftEdge"`
	IncidentBeamRightEdge              float64   `yaml:"incidentBeamRightEdge"`
	IncidentBeamBottomEdge             float64   `yaml:"incidentBeamBottomEdge"`
	IncidentBeamTopEdge                float64   `yaml:"incidentBeamTopEdge"`
	ScatteredBeamLeftEdge              float64   `yaml:"scatteredBeamLeftEdge"`
	ScatteredBeamRightEdge             float64   `yaml:"scatteredBeamRightEdge"`
	ScatteredBeamBottomEdge            float64   `yaml:"scatteredBeamBottomEdge"`
	ScatteredBeamTopEdge               float64   `yaml:"scatteredBeamTopEdge"`
	FilenameIncidentBeamSpectrumParams string    `yaml:"filenameIncidentBeamSpectrumParams"`
	OverallBackgroundFactor            float64   `yaml:"overallBackgroundFactor"`
	SampleDependantBackgroundFactor    float64   `yaml:"sampleDependantBackgroundFactor"`
	ShieldingAttenuationCoefficient    float64   `yaml:"shieldingAttenuationCoefficient"`
}

// Clone returns a deep copy of b.
func (b Beam) Clone() Beam {
	b.BeamProfileValues = append([]float64(nil), b.BeamProfileValues...)
	return b
}

// Shape holds both geometry-specific field sets. Which set is meaningful
// depends on the resolved geometry.
type Shape struct {
	Geometry            Geometry `yaml:"geometry"`
	UpstreamThickness   float64  `yaml:"upstreamThickness"`
	DownstreamThickness float64  `yaml:"downstreamThickness"`
	AngleOfRotation     float64  `yaml:"angleOfRotation"`
	SampleWidth         float64  `yaml:"sampleWidth"`
	InnerRadius         float64  `yaml:"innerRadius"`
	OuterRadius         float64  `yaml:"outerRadius"`
	SampleHeight        float64  `yaml:"sampleHeight"`
}

// ResolveGeometry returns ambient when own is SameAsBeam.
func ResolveGeometry(own, ambient Geometry) Geometry {
	if own == SameAsBeam {
		return ambient
	}
	return own
}

// TotalThickness returns upstream plus downstream thickness.
func (s Shape) TotalThickness() float64 {
	return s.UpstreamThickness + s.DownstreamThickness
}

// SetTotalThickness splits t evenly into upstream and downstream halves.
func (s *Shape) SetTotalThickness(t float64) {
	s.UpstreamThickness = t / 2
	s.DownstreamThickness = t / 2
}

// Normalisation describes the vanadium (or other) normalisation run and
// its background.
type Normalisation struct {
	DataFiles                         DataFiles          `yaml:"dataFiles"`
	DataFilesBg                       DataFiles          `yaml:"dataFilesBg"`
	ForceCalculationOfPlaczek         bool               `yaml:"forceCalculationOfPlaczek"`
	Composition                       Composition        `yaml:"composition"`
	Shape                             `yaml:",inline"`
	Density                           float64            `yaml:"density"`
	DensityUnits                      UnitsOfDensity     `yaml:"densityUnits"`
	TempForNormalisationPC            float64            `yaml:"tempForNormalisationPC"`
	TotalCrossSectionSource           CrossSectionSource `yaml:"totalCrossSectionSource"`
	CrossSectionFilename              string             `yaml:"crossSectionFilename"`
	DifferentialCrossSectionFile      string             `yaml:"normalisationDifferentialCrossSectionFile"`
	LowerLimitSmoothedNormalisation   float64            `yaml:"lowerLimitSmoothedNormalisation"`
	NormalisationDegreeSmoothing      float64            `yaml:"normalisationDegreeSmoothing"`
	MinNormalisationSignalBR          float64            `yaml:"minNormalisationSignalBR"`
}

// Clone returns a deep copy of n.
func (n Normalisation) Clone() Normalisation {
	n.DataFiles = n.DataFiles.Clone()
	n.DataFilesBg = n.DataFilesBg.Clone()
	n.Composition = n.Composition.Clone()
	return n
}

// Range is a closed wavelength interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Exponential is one amplitude/decay pair subtracted from the sample's
// transform.
type Exponential struct {
	Amplitude float64 `yaml:"amplitude"`
	Decay     float64 `yaml:"decay"`
}

// Sample is one measured specimen. Name is its identity: the orchestrator
// files each sample's outputs under it.
type Sample struct {
	Name                              string             `yaml:"name"`
	DataFiles                         DataFiles          `yaml:"dataFiles"`
	ForceCalculationOfCorrections     bool               `yaml:"forceCalculationOfCorrections"`
	Composition                       Composition        `yaml:"composition"`
	Shape                             `yaml:",inline"`
	Density                           float64            `yaml:"density"`
	DensityUnits                      UnitsOfDensity     `yaml:"densityUnits"`
	TempForSamplePC                   float64            `yaml:"tempForSamplePC"`
	TotalCrossSectionSource           CrossSectionSource `yaml:"totalCrossSectionSource"`
	CrossSectionFilename              string             `yaml:"crossSectionFilename"`
	SampleTweakFactor                 float64            `yaml:"sampleTweakFactor"`
	TopHatW                           float64            `yaml:"topHatW"`
	MinRadFT                          float64            `yaml:"minRadFT"`
	GRBroadening                      float64            `yaml:"grBroadening"`
	ResonanceValues                   []Range            `yaml:"resonanceValues"`
	ExponentialValues                 []Exponential      `yaml:"exponentialValues"`
	NormalisationCorrectionFactor     float64            `yaml:"normalisationCorrectionFactor"`
	FileSelfScattering                string             `yaml:"fileSelfScattering"`
	NormaliseTo                       NormalisationType  `yaml:"normaliseTo"`
	MaxRadFT                          float64            `yaml:"maxRadFT"`
	OutputUnits                       OutputUnits        `yaml:"outputUnits"`
	PowerForBroadening                float64            `yaml:"powerForBroadening"`
	StepSize                          float64            `yaml:"stepSize"`
	RunThisSample                     bool               `yaml:"runThisSample"`
	EnvironmentScatteringFraction     float64            `yaml:"scatteringFraction"`
	EnvironmentAttenuationCoefficient float64            `yaml:"attenuationCoefficient"`
	Containers                        []Container        `yaml:"containers"`
}

// Clone returns a deep copy of s, containers included.
func (s Sample) Clone() Sample {
	s.DataFiles = s.DataFiles.Clone()
	s.Composition = s.Composition.Clone()
	s.ResonanceValues = append([]Range(nil), s.ResonanceValues...)
	s.ExponentialValues = append([]Exponential(nil), s.ExponentialValues...)
	if s.Containers != nil {
		cs := make([]Container, len(s.Containers))
		for i, c := range s.Containers {
			cs[i] = c.Clone()
		}
		s.Containers = cs
	}
	return s
}

// Running reports whether the sample takes part in a reduction run.
func (s *Sample) Running() bool {
	return s.RunThisSample && len(s.DataFiles.Files) > 0
}

// Container is the can or environment a sample sits in.
type Container struct {
	Name                              string             `yaml:"name"`
	DataFiles                         DataFiles          `yaml:"dataFiles"`
	Composition                       Composition        `yaml:"composition"`
	Shape                             `yaml:",inline"`
	Density                           float64            `yaml:"density"`
	DensityUnits                      UnitsOfDensity     `yaml:"densityUnits"`
	TotalCrossSectionSource           CrossSectionSource `yaml:"totalCrossSectionSource"`
	CrossSectionFilename              string             `yaml:"crossSectionFilename"`
	TweakFactor                       float64            `yaml:"tweakFactor"`
	EnvironmentScatteringFraction     float64            `yaml:"scatteringFraction"`
	EnvironmentAttenuationCoefficient float64            `yaml:"attenuationCoefficient"`
	RunAsSample                       bool               `yaml:"runAsSample"`
}

// Clone returns a deep copy of c.
func (c Container) Clone() Container {
	c.DataFiles = c.DataFiles.Clone()
	c.Composition = c.Composition.Clone()
	return c
}

// SampleBackground is an empty-instrument background measurement together
// with the samples reduced against it.
type SampleBackground struct {
	DataFiles DataFiles `yaml:"dataFiles"`
	Samples   []Sample  `yaml:"samples"`
}

// Clone returns a deep copy of sb.
func (sb SampleBackground) Clone() SampleBackground {
	sb.DataFiles = sb.DataFiles.Clone()
	if sb.Samples != nil {
		ss := make([]Sample, len(sb.Samples))
		for i, s := range sb.Samples {
			ss[i] = s.Clone()
		}
		sb.Samples = ss
	}
	return sb
}

// GUIConfig carries front-end preferences stored alongside the project.
type GUIConfig struct {
	UseComponents bool `yaml:"useComponents"`
}

// GudrunFile is the configuration root. The runtime fields (Path,
// ProjectDir, OutputDir, Modified) are not persisted.
type GudrunFile struct {
	Instrument        Instrument         `yaml:"Instrument"`
	Beam              Beam               `yaml:"Beam"`
	Components        []Component        `yaml:"Components"`
	Normalisation     Normalisation      `yaml:"Normalisation"`
	SampleBackgrounds []SampleBackground `yaml:"SampleBackgrounds"`
	GUI               GUIConfig          `yaml:"GUI"`

	Path       string `yaml:"-"`
	ProjectDir string `yaml:"-"`
	OutputDir  string `yaml:"-"`
	Modified   bool   `yaml:"-"`
}

// Clone returns a deep copy of gf. Orchestrated runs mutate clones only.
func (gf *GudrunFile) Clone() *GudrunFile {
	out := *gf
	out.Instrument = gf.Instrument.Clone()
	out.Beam = gf.Beam.Clone()
	out.Normalisation = gf.Normalisation.Clone()
	if gf.Components != nil {
		out.Components = make([]Component, len(gf.Components))
		for i, c := range gf.Components {
			out.Components[i] = c.Clone()
		}
	}
	if gf.SampleBackgrounds != nil {
		out.SampleBackgrounds = make([]SampleBackground, len(gf.SampleBackgrounds))
		for i, sb := range gf.SampleBackgrounds {
			out.SampleBackgrounds[i] = sb.Clone()
		}
	}
	return &out
}

// Geometry returns the ambient geometry used to resolve SameAsBeam.
func (gf *GudrunFile) Geometry() Geometry {
	return gf.Beam.SampleGeometry
}

// RunningSamples returns pointers to every sample that takes part in a
// run, in file order. The pointers alias gf.
func (gf *GudrunFile) RunningSamples() []*Sample {
	var out []*Sample
	for i := range gf.SampleBackgrounds {
		sb := &gf.SampleBackgrounds[i]
		for j := range sb.Samples {
			if sb.Samples[j].Running() {
				out = append(out, &sb.Samples[j])
			}
		}
	}
	return out
}

// FindSample returns the first sample named name, or nil.
func (gf *GudrunFile) FindSample(name string) *Sample {
	for i := range gf.SampleBackgrounds {
		sb := &gf.SampleBackgrounds[i]
		for j := range sb.Samples {
			if sb.Samples[j].Name == name {
				return &sb.Samples[j]
			}
		}
	}
	return nil
}

// LinkComponents resolves every weighted component reference against the
// component library.
func (gf *GudrunFile) LinkComponents() error {
	link := func(c *Composition) error { return c.LinkComponents(gf.Components) }
	if err := link(&gf.Normalisation.Composition); err != nil {
		return err
	}
	for i := range gf.SampleBackgrounds {
		for j := range gf.SampleBackgrounds[i].Samples {
			s := &gf.SampleBackgrounds[i].Samples[j]
			if err := link(&s.Composition); err != nil {
				return err
			}
			for k := range s.Containers {
				if err := link(&s.Containers[k].Composition); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
