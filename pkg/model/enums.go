// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Geometry is the shape of a sample, container, or normalisation. SameAsBeam
// defers to the beam's geometry at render time.
type Geometry int

const (
	SameAsBeam Geometry = iota
	FlatPlate
	Cylindrical
)

var geometryNames = []string{"SameAsBeam", "FLATPLATE", "CYLINDRICAL"}

// UnitsOfDensity selects how a density value is interpreted.
type UnitsOfDensity int

const (
	Atomic UnitsOfDensity = iota
	Chemical
)

var unitsOfDensityNames = []string{"ATOMIC", "CHEMICAL"}

// CrossSectionSource selects where total cross sections come from. File
// means a user-supplied filename rendered in place of the keyword.
type CrossSectionSource int

const (
	Tables CrossSectionSource = iota
	Transmission
	File
)

var crossSectionSourceNames = []string{"TABLES", "TRANSMISSION", "FILE"}

// NormalisationType selects what the sample DCS is normalised to.
type NormalisationType int

const (
	NormaliseNothing NormalisationType = iota
	NormaliseAverageSquared
	NormaliseAverage
)

var normalisationTypeNames = []string{"NOTHING", "AVERAGE_SQUARED", "AVERAGE"}

// normalisationTypeLabels are the legacy annotations for each NormalisationType.
var normalisationTypeLabels = []string{"Nothing", "<b>^2", "<b^2>"}

// Label returns the legacy annotation text for t.
func (t NormalisationType) Label() string { return enumName(normalisationTypeLabels, int(t)) }

// OutputUnits selects the unit of the final DCS output.
type OutputUnits int

const (
	BarnsAtomSr OutputUnits = iota
	CmSr
)

var outputUnitsNames = []string{"BARNS_ATOM_SR", "CM_SR"}

var outputUnitsLabels = []string{"b/atom/sr", "cm^-1/sr"}

// Label returns the legacy annotation text for u.
func (u OutputUnits) Label() string { return enumName(outputUnitsLabels, int(u)) }

// MergeWeights selects how detector groups are weighted when merged.
type MergeWeights int

const (
	MergeNone MergeWeights = iota
	MergeDetector
	MergeChannel
)

var mergeWeightsNames = []string{"NONE", "DETECTOR", "CHANNEL"}

// Scales is the active X-scale. The legacy format numbers them from 1.
type Scales int

const (
	ScaleQ Scales = iota
	ScaleDSpacing
	ScaleWavelength
	ScaleEnergy
	ScaleTOF
)

var scalesNames = []string{"Q", "D_SPACING", "WAVELENGTH", "ENERGY", "TOF"}

// Instruments names the diffractometer the configuration targets.
type Instruments int

const (
	SANDALS Instruments = iota
	GEM
	NIMROD
	HIPR
	D4C
	POLARIS
	OSIRIS
	WISH
)

var instrumentsNames = []string{"SANDALS", "GEM", "NIMROD", "HIPR", "D4C", "POLARIS", "OSIRIS", "WISH"}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("UNKNOWN(%d)", i)
	}
	return names[i]
}

func enumIndex(kind string, names []string, s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (want one of %s)", kind, s, strings.Join(names, ", "))
}

func enumOrdinal(kind string, n, i int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%s ordinal %d out of range [0,%d)", kind, i, n)
	}
	return nil
}

func decodeEnum(kind string, names []string, node *yaml.Node) (int, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: %s must be a scalar", node.Line, kind)
	}
	i, err := enumIndex(kind, names, node.Value)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return i, nil
}

func (g Geometry) String() string                { return enumName(geometryNames, int(g)) }
func (g Geometry) MarshalYAML() (any, error)     { return g.String(), nil }
func (g *Geometry) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("geometry", geometryNames, n)
	*g = Geometry(i)
	return err
}

// ParseGeometry parses a geometry name.
func ParseGeometry(s string) (Geometry, error) {
	i, err := enumIndex("geometry", geometryNames, s)
	return Geometry(i), err
}

func (u UnitsOfDensity) String() string            { return enumName(unitsOfDensityNames, int(u)) }
func (u UnitsOfDensity) MarshalYAML() (any, error) { return u.String(), nil }
func (u *UnitsOfDensity) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("density units", unitsOfDensityNames, n)
	*u = UnitsOfDensity(i)
	return err
}

func (c CrossSectionSource) String() string            { return enumName(crossSectionSourceNames, int(c)) }
func (c CrossSectionSource) MarshalYAML() (any, error) { return c.String(), nil }
func (c *CrossSectionSource) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("cross section source", crossSectionSourceNames, n)
	*c = CrossSectionSource(i)
	return err
}

func (t NormalisationType) String() string            { return enumName(normalisationTypeNames, int(t)) }
func (t NormalisationType) MarshalYAML() (any, error) { return t.String(), nil }
func (t *NormalisationType) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("normalisation type", normalisationTypeNames, n)
	*t = NormalisationType(i)
	return err
}

// NormalisationTypeFromOrdinal converts a legacy ordinal.
func NormalisationTypeFromOrdinal(i int) (NormalisationType, error) {
	return NormalisationType(i), enumOrdinal("normalisation type", len(normalisationTypeNames), i)
}

func (u OutputUnits) String() string            { return enumName(outputUnitsNames, int(u)) }
func (u OutputUnits) MarshalYAML() (any, error) { return u.String(), nil }
func (u *OutputUnits) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("output units", outputUnitsNames, n)
	*u = OutputUnits(i)
	return err
}

// OutputUnitsFromOrdinal converts a legacy ordinal.
func OutputUnitsFromOrdinal(i int) (OutputUnits, error) {
	return OutputUnits(i), enumOrdinal("output units", len(outputUnitsNames), i)
}

func (m MergeWeights) String() string            { return enumName(mergeWeightsNames, int(m)) }
func (m MergeWeights) MarshalYAML() (any, error) { return m.String(), nil }
func (m *MergeWeights) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("merge weights", mergeWeightsNames, n)
	*m = MergeWeights(i)
	return err
}

// MergeWeightsFromOrdinal converts a legacy ordinal.
func MergeWeightsFromOrdinal(i int) (MergeWeights, error) {
	return MergeWeights(i), enumOrdinal("merge weights", len(mergeWeightsNames), i)
}

func (s Scales) String() string            { return enumName(scalesNames, int(s)) }
func (s Scales) MarshalYAML() (any, error) { return s.String(), nil }
func (s *Scales) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum("scale", scalesNames, n)
	*s = Scales(i)
	return err
}

// ScalesFromLegacy converts the 1-based legacy scale selection.
func ScalesFromLegacy(i int) (Scales, error) {
	return Scales(i - 1), enumOrdinal("scale selection", len(scalesNames), i-1)
}

// Legacy returns the 1-based legacy scale selection.
func (s Scales) Legacy() int { return int(s) + 1 }

func (i Instruments) String() string            { return enumName(instrumentsNames, int(i)) }
func (i Instruments) MarshalYAML() (any, error) { return i.String(), nil }
func (i *Instruments) UnmarshalYAML(n *yaml.Node) error {
	v, err := decodeEnum("instrument", instrumentsNames, n)
	*i = Instruments(v)
	return err
}

// ParseInstrument parses an instrument name.
func ParseInstrument(s string) (Instruments, error) {
	i, err := enumIndex("instrument", instrumentsNames, s)
	return Instruments(i), err
}
