// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContainersAsSamples returns a copy of gf in which every container
// flagged RunAsSample becomes an independent, running sample in the same
// sample background. The promoted sample inherits its parent's reduction
// settings and takes the container's name, data files, composition,
// shape, density and cross-section source. The sample list of each
// background is replaced by the promoted containers; unflagged containers
// are dropped with their samples.
func ContainersAsSamples(gf *GudrunFile) *GudrunFile {
	out := gf.Clone()
	for i := range out.SampleBackgrounds {
		sb := &out.SampleBackgrounds[i]
		var samples []Sample
		for _, s := range sb.Samples {
			for _, c := range s.Containers {
				if !c.RunAsSample {
					continue
				}
				samples = append(samples, containerAsSample(s, c))
			}
		}
		sb.Samples = samples
	}
	return out
}

func containerAsSample(parent Sample, c Container) Sample {
	s := parent.Clone()
	s.Name = c.Name
	s.DataFiles = c.DataFiles.Clone()
	s.DataFiles.Name = c.Name
	s.Composition = c.Composition.Clone()
	s.Shape = c.Shape
	// A container resolves SameAsBeam through its sample first.
	s.Geometry = ResolveGeometry(c.Geometry, parent.Geometry)
	s.Density = c.Density
	s.DensityUnits = c.DensityUnits
	s.TotalCrossSectionSource = c.TotalCrossSectionSource
	s.CrossSectionFilename = c.CrossSectionFilename
	s.SampleTweakFactor = c.TweakFactor
	s.EnvironmentScatteringFraction = c.EnvironmentScatteringFraction
	s.EnvironmentAttenuationCoefficient = c.EnvironmentAttenuationCoefficient
	s.RunThisSample = true
	s.Containers = nil
	return s
}

// PartitionByFile returns a copy of gf in which every running sample with
// N data files is replaced by N single-file samples named
// "<sample>_<file stem>". Samples that are not running are kept as they
// are.
func PartitionByFile(gf *GudrunFile) *GudrunFile {
	out := gf.Clone()
	for i := range out.SampleBackgrounds {
		sb := &out.SampleBackgrounds[i]
		var samples []Sample
		for _, s := range sb.Samples {
			if !s.Running() {
				samples = append(samples, s)
				continue
			}
			for _, f := range s.DataFiles.Files {
				part := s.Clone()
				base := filepath.Base(f)
				part.Name = fmt.Sprintf("%s_%s", s.Name, strings.TrimSuffix(base, filepath.Ext(base)))
				part.DataFiles.Files = []string{f}
				part.DataFiles.Name = part.Name
				samples = append(samples, part)
			}
		}
		sb.Samples = samples
	}
	return out
}

// Batches partitions the data files of every running sample into
// consecutive chunks and returns one configuration per batch index. The
// first batch has firstSize files when firstSize > 0, the rest have size
// files. Batch i of the result holds chunk i of every running sample; a
// sample with fewer chunks is not running in the later batches. Samples
// that are not running are carried unchanged.
func Batches(gf *GudrunFile, size, firstSize int) ([]*GudrunFile, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	chunks := func(files []string) [][]string {
		var out [][]string
		rest := files
		if firstSize > 0 && len(rest) > 0 {
			n := min(firstSize, len(rest))
			out = append(out, rest[:n])
			rest = rest[n:]
		}
		for len(rest) > 0 {
			n := min(size, len(rest))
			out = append(out, rest[:n])
			rest = rest[n:]
		}
		return out
	}

	nBatches := 0
	for _, s := range gf.RunningSamples() {
		nBatches = max(nBatches, len(chunks(s.DataFiles.Files)))
	}

	batches := make([]*GudrunFile, nBatches)
	for b := range batches {
		out := gf.Clone()
		for i := range out.SampleBackgrounds {
			sb := &out.SampleBackgrounds[i]
			for j := range sb.Samples {
				s := &sb.Samples[j]
				if !s.Running() {
					continue
				}
				cs := chunks(s.DataFiles.Files)
				if b >= len(cs) {
					s.RunThisSample = false
					s.DataFiles.Files = nil
					continue
				}
				s.DataFiles.Files = append([]string(nil), cs[b]...)
			}
		}
		batches[b] = out
	}
	return batches, nil
}
