// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package iterate

import (
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Self-scattering extensions for the two phases.
const (
	WavelengthExt = ".mint01"
	QExt          = ".msubw01"
)

// Wavelength subtraction phases.
const (
	PhaseWavelength = 0
	PhaseQ          = 1
)

// wavelengthSubtraction alternates a wavelength-scale run and a Q-scale
// run each iteration.
type wavelengthSubtraction struct {
	base

	saved   bool
	xMin    float64
	xMax    float64
	xStep   float64
	scale   model.Scales
	topHatW map[string]float64
}

// NewWavelengthSubtraction returns the two-phase wavelength subtraction
// strategy.
func NewWavelengthSubtraction(iterations int) Strategy {
	return &wavelengthSubtraction{base: base{name: "wavelength-subtraction", iterations: iterations}}
}

func (w *wavelengthSubtraction) Phases() int { return 2 }

func (w *wavelengthSubtraction) Before(k, p int, gf *model.GudrunFile, prev Results) error {
	in := &gf.Instrument
	samples := gf.RunningSamples()
	if p == PhaseWavelength {
		if k == 0 && !w.saved {
			in.SubWavelengthBinnedData = false
			w.xMin, w.xMax, w.xStep, w.scale = in.XMin, in.XMax, in.XStep, in.ScaleSelection
			w.topHatW = make(map[string]float64, len(samples))
			for _, s := range samples {
				w.topHatW[s.Name] = s.TopHatW
			}
			w.saved = true
		}
		in.XMin, in.XMax, in.XStep = in.WavelengthMin, in.WavelengthMax, in.WavelengthStep
		in.ScaleSelection = model.ScaleWavelength
		in.UseLogarithmicBinning = true
		for _, s := range samples {
			s.TopHatW = 0
			s.FileSelfScattering = selfScattering(s, prev, WavelengthExt)
		}
		return nil
	}

	in.SubWavelengthBinnedData = true
	in.XMin, in.XMax, in.XStep, in.ScaleSelection = w.xMin, w.xMax, w.xStep, w.scale
	in.UseLogarithmicBinning = false
	for _, s := range samples {
		if tw, ok := w.topHatW[s.Name]; ok {
			s.TopHatW = tw
		}
		s.FileSelfScattering = selfScattering(s, prev, QExt)
	}
	return nil
}

// selfScattering points at the previous run's output with ext, or swaps the
// extension of the current file when there is no previous run.
func selfScattering(s *model.Sample, prev Results, ext string) string {
	if prev != nil {
		return prev.SampleFile(s, ext)
	}
	name := s.FileSelfScattering
	if name == "" {
		return s.DataFiles.Stem() + ext
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
