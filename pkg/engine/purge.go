// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// PurgeOptions are the detector filtering settings passed to the purge
// engine.
type PurgeOptions struct {
	StdDevLower         float64
	StdDevUpper         float64
	IgnoreBad           bool
	ExcludeSampleAndCan bool
}

// DefaultPurgeOptions returns the settings used when none are configured.
func DefaultPurgeOptions() PurgeOptions {
	return PurgeOptions{StdDevLower: 10, StdDevUpper: 10, IgnoreBad: true}
}

type purgeFiles struct {
	title string
	files model.DataFiles
}

// PurgeFile is the purge engine input, derived from a configuration just
// before the purge runs.
type PurgeFile struct {
	Instrument model.Instrument
	Options    PurgeOptions
	Files      []purgeFiles
}

// NewPurgeFile copies the spectrum and channel parameters of gf and
// collects the data files to screen: normalisation, sample backgrounds,
// and unless excluded every running sample with its containers.
func NewPurgeFile(gf *model.GudrunFile, opts PurgeOptions) *PurgeFile {
	pf := &PurgeFile{Instrument: gf.Instrument.Clone(), Options: opts}
	add := func(title string, df model.DataFiles) {
		pf.Files = append(pf.Files, purgeFiles{title: title, files: df.Clone()})
	}
	add("NORMALISATION", gf.Normalisation.DataFiles)
	add("NORMALISATION BACKGROUND", gf.Normalisation.DataFilesBg)
	for _, sb := range gf.SampleBackgrounds {
		add("SAMPLE BACKGROUND", sb.DataFiles)
		if opts.ExcludeSampleAndCan {
			continue
		}
		for _, s := range sb.Samples {
			if !s.Running() {
				continue
			}
			add("SAMPLE "+s.Name, s.DataFiles)
			for _, c := range s.Containers {
				add("CONTAINER "+c.Name, c.DataFiles)
			}
		}
	}
	return pf
}

// String renders the purge input file.
func (pf *PurgeFile) String() string {
	var b strings.Builder
	line := func(value, note string) { b.WriteString(tokens.Line(value, note) + "\n") }
	open := func(title string) { b.WriteString(title + tokens.Pad + "{\n\n") }
	closeSection := func() { b.WriteString("\n}\n\n") }

	in := pf.Instrument
	b.WriteString("'  '  '        '  '/'\n\n")
	open("INSTRUMENT")
	line(in.Name.String(), "Instrument name")
	line(in.DataFileDir, "Data file directory")
	line(in.DataFileType, "Data file type")
	line(in.DetectorCalibrationFileName, "Detector calibration file name")
	line(fmt.Sprint(in.ColumnNoPhiVals), "User table column number for phi values")
	line(in.GroupFileName, "Groups file name")
	line(in.DeadtimeConstantsFileName, "Deadtime constants file name")
	line(tokens.JoinInts(in.SpectrumNumbersForIncidentBeamMonitor), "Spectrum number(s) for incident beam monitor")
	line(tokens.JoinInts(in.SpectrumNumbersForTransmissionMonitor), "Spectrum number(s) for transmission monitor")
	line(tokens.Join(in.SpikeAnalysisChannelLo, in.SpikeAnalysisChannelHi), "Channel numbers for spike analysis")
	line(tokens.FormatFloat(in.SpikeAnalysisAcceptanceFactor), "Spike analysis acceptance factor")
	closeSection()

	open("PURGE PARAMETERS")
	line(tokens.Join(pf.Options.StdDevLower, pf.Options.StdDevUpper), "Lower and upper standard deviations accepted")
	line(tokens.FormatBool(pf.Options.IgnoreBad), "Ignore bad spectra?")
	line(tokens.FormatBool(pf.Options.ExcludeSampleAndCan), "Exclude sample and can?")
	closeSection()

	for _, f := range pf.Files {
		open(f.title)
		line(tokens.Join(len(f.files.Files), f.files.PeriodNumber), "Number of  files and period number")
		for _, name := range f.files.Files {
			line(name, f.title+" data files")
		}
		closeSection()
	}
	b.WriteString("END" + tokens.Pad + "\n")
	return b.String()
}
