// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package gudrunfile reads and writes the legacy block-structured input
// format consumed by the reduction engine. A file is a header line, the
// INSTRUMENT, BEAM and NORMALISATION sections, then a flat run of
// SAMPLE BACKGROUND, SAMPLE and CONTAINER sections in which each sample
// belongs to the background before it and each container to the sample
// before it, closed by an END line.
package gudrunfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// Header is the first line of every legacy input file.
const Header = "'  '  '        '  '/'"

// sectionKind is the closed set of sections the format knows.
type sectionKind int

const (
	kindInstrument sectionKind = iota
	kindBeam
	kindNormalisation
	kindSampleBackground
	kindSample
	kindContainer
)

var sectionKeywords = []string{"INSTRUMENT", "BEAM", "NORMALISATION", "SAMPLE BACKGROUND", "SAMPLE", "CONTAINER"}

func (k sectionKind) String() string { return sectionKeywords[k] }

type section struct {
	kind  sectionKind
	title string
	name  string
	start int // file index of the first body line
	body  []string
}

func (s *section) errorf(path, fieldName string, i int, err error) error {
	return &ParseError{Path: path, Section: s.title, Field: fieldName, Line: s.start + i + 1, Err: err}
}

func classify(title string) (sectionKind, string, bool) {
	upper := strings.ToUpper(title)
	switch {
	case upper == "INSTRUMENT":
		return kindInstrument, "", true
	case upper == "BEAM":
		return kindBeam, "", true
	case upper == "NORMALISATION":
		return kindNormalisation, "", true
	case strings.HasPrefix(upper, "SAMPLE BACKGROUND"):
		return kindSampleBackground, "", true
	case upper == "SAMPLE" || strings.HasPrefix(upper, "SAMPLE "):
		return kindSample, strings.TrimSpace(title[len("SAMPLE"):]), true
	case upper == "CONTAINER" || strings.HasPrefix(upper, "CONTAINER "):
		return kindContainer, strings.TrimSpace(title[len("CONTAINER"):]), true
	}
	return 0, "", false
}

// scan splits lines into sections. Scanning stops at the END line.
func scan(lines []string, path string) ([]*section, error) {
	var secs []*section
	for i := 0; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if t == "END" {
			break
		}
		if !strings.HasSuffix(t, "{") {
			continue
		}
		title := strings.TrimSpace(strings.TrimSuffix(t, "{"))
		kind, name, ok := classify(title)
		if !ok {
			return nil, &ParseError{Path: path, Line: i + 1, Err: fmt.Errorf("%w: unknown section %q", ErrStructure, title)}
		}
		end := i + 1
		for end < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[end]), "}") {
			end++
		}
		if end == len(lines) {
			return nil, &ParseError{Path: path, Section: title, Line: i + 1, Err: fmt.Errorf("%w: section is not closed", ErrStructure)}
		}
		secs = append(secs, &section{kind: kind, title: title, name: name, start: i + 1, body: lines[i+1 : end]})
		i = end
	}
	return secs, nil
}

// Parse builds a configuration root from legacy input text. path is used
// in error messages and recorded on the result.
func Parse(data []byte, path string) (*model.GudrunFile, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	secs, err := scan(lines, path)
	if err != nil {
		return nil, err
	}

	singletons := map[sectionKind]*section{}
	for _, s := range secs {
		switch s.kind {
		case kindInstrument, kindBeam, kindNormalisation:
			if singletons[s.kind] == nil {
				singletons[s.kind] = s
			}
		}
	}
	for _, k := range []sectionKind{kindInstrument, kindBeam, kindNormalisation} {
		if singletons[k] == nil {
			return nil, &ParseError{Path: path, Section: k.String(), Err: ErrMissingSection}
		}
	}

	gf := &model.GudrunFile{Path: path}
	if err := decode(singletons[kindInstrument], path, instrumentFields, &gf.Instrument, model.SameAsBeam); err != nil {
		return nil, err
	}
	if err := decode(singletons[kindBeam], path, beamFields, &gf.Beam, model.SameAsBeam); err != nil {
		return nil, err
	}
	ambient := gf.Beam.SampleGeometry
	if err := decode(singletons[kindNormalisation], path, normalisationFields, &gf.Normalisation, ambient); err != nil {
		return nil, err
	}

	for _, s := range secs {
		switch s.kind {
		case kindInstrument, kindBeam, kindNormalisation:
		case kindSampleBackground:
			var sb model.SampleBackground
			if err := decode(s, path, sampleBackgroundFields, &sb, ambient); err != nil {
				return nil, err
			}
			gf.SampleBackgrounds = append(gf.SampleBackgrounds, sb)
		case kindSample:
			if len(gf.SampleBackgrounds) == 0 {
				return nil, s.errorf(path, "", -1, fmt.Errorf("%w: SAMPLE before any SAMPLE BACKGROUND", ErrStructure))
			}
			sb := &gf.SampleBackgrounds[len(gf.SampleBackgrounds)-1]
			smp := model.Sample{Name: s.name}
			if err := decode(s, path, sampleFields, &smp, ambient); err != nil {
				return nil, err
			}
			sb.Samples = append(sb.Samples, smp)
		case kindContainer:
			var owner *model.Sample
			if n := len(gf.SampleBackgrounds); n > 0 {
				if m := len(gf.SampleBackgrounds[n-1].Samples); m > 0 {
					owner = &gf.SampleBackgrounds[n-1].Samples[m-1]
				}
			}
			if owner == nil {
				return nil, s.errorf(path, "", -1, fmt.Errorf("%w: CONTAINER before any SAMPLE", ErrStructure))
			}
			c := model.Container{Name: s.name}
			if err := decode(s, path, containerFields, &c, model.ResolveGeometry(owner.Geometry, ambient)); err != nil {
				return nil, err
			}
			owner.Containers = append(owner.Containers, c)
		}
	}
	return gf, nil
}

// ParseFile reads and parses the legacy input file at path.
func ParseFile(path string) (*model.GudrunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data, path)
}

// Marshal renders gf in the legacy format.
func Marshal(gf *model.GudrunFile) ([]byte, error) {
	return marshalAt(gf, time.Now())
}

func marshalAt(gf *model.GudrunFile, now time.Time) ([]byte, error) {
	ambient := gf.Beam.SampleGeometry
	if ambient == model.SameAsBeam {
		return nil, fmt.Errorf("BEAM: sample geometry must be %s or %s", model.FlatPlate, model.Cylindrical)
	}

	var b strings.Builder
	b.WriteString(Header + "\n\n")
	write := func(title string, lines []string, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", title, err)
		}
		b.WriteString(title + tokens.Pad + "{\n\n")
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		b.WriteString("\n}\n\n")
		return nil
	}

	lines, err := encode(instrumentFields, &gf.Instrument, ambient)
	if err := write(kindInstrument.String(), lines, err); err != nil {
		return nil, err
	}
	lines, err = encode(beamFields, &gf.Beam, ambient)
	if err := write(kindBeam.String(), lines, err); err != nil {
		return nil, err
	}
	lines, err = encode(normalisationFields, &gf.Normalisation, ambient)
	if err := write(kindNormalisation.String(), lines, err); err != nil {
		return nil, err
	}
	for i := range gf.SampleBackgrounds {
		sb := &gf.SampleBackgrounds[i]
		lines, err := encode(sampleBackgroundFields, sb, ambient)
		if err := write(kindSampleBackground.String(), lines, err); err != nil {
			return nil, err
		}
		for j := range sb.Samples {
			s := &sb.Samples[j]
			lines, err := encode(sampleFields, s, ambient)
			if err := write(sectionTitle(kindSample.String(), s.Name), lines, err); err != nil {
				return nil, err
			}
			containerAmbient := model.ResolveGeometry(s.Geometry, ambient)
			for k := range s.Containers {
				c := &s.Containers[k]
				lines, err := encode(containerFields, c, containerAmbient)
				if err := write(sectionTitle(kindContainer.String(), c.Name), lines, err); err != nil {
					return nil, err
				}
			}
		}
	}

	b.WriteString("GO" + tokens.Pad + "\n\n\n")
	b.WriteString("END" + tokens.Pad + "\n1\n")
	b.WriteString("Date and time last written:  " + now.Format("20060102 15:04:05") + "\nN\n")
	return []byte(b.String()), nil
}

// WriteFile renders gf in the legacy format to path.
func WriteFile(gf *model.GudrunFile, path string) error {
	data, err := Marshal(gf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
