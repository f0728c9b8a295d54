// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package gudrunfile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// field describes one entry of an entity's fixed line schema. A scalar
// field occupies one data line located by its keyphrases; a block field
// (block != nil) occupies a variable number of lines starting either at the
// line its keyphrases locate or, with no keyphrases, at the cursor.
type field[T any] struct {
	name     string
	note     string
	keys     []string
	optional bool

	// when gates the field on the entity's resolved geometry; nil means
	// the field is always present.
	when func(e *T, ambient model.Geometry) bool

	parse  func(e *T, line string) error
	value  func(e *T) string
	noteFn func(e *T) string

	block *block[T]
}

type block[T any] struct {
	// parse consumes lines[i:] and returns the index after the block.
	parse  func(e *T, lines []string, i int) (int, error)
	render func(e *T) ([]string, error)
}

func (f field[T]) annotation(e *T) string {
	if f.noteFn != nil {
		return f.noteFn(e)
	}
	return f.note
}

// find returns the index of the first line at or after from that contains
// every key, ignoring case, or -1.
func find(lines []string, from int, keys []string) int {
	for i := from; i < len(lines); i++ {
		ok := true
		for _, k := range keys {
			if !tokens.ContainsFold(lines[i], k) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

func skipBlank(lines []string, i int) int {
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return i
}

// decode fills e from the body of sec. The cursor starts at the top of the
// body and advances past every located field and every variable-length
// block, so each keyphrase search begins at the line the field is expected
// on given the blocks already consumed.
func decode[T any](sec *section, path string, fields []field[T], e *T, ambient model.Geometry) error {
	lines := sec.body
	cur := 0
	for _, f := range fields {
		if f.when != nil && !f.when(e, ambient) {
			continue
		}
		at := skipBlank(lines, cur)
		if len(f.keys) > 0 {
			at = find(lines, cur, f.keys)
			if at < 0 {
				if f.optional {
					continue
				}
				return sec.errorf(path, f.name, cur, fmt.Errorf("%w: %q", ErrMissingField, strings.Join(f.keys, " ... ")))
			}
		}
		if f.block != nil {
			next, err := f.block.parse(e, lines, at)
			if err != nil {
				var le *lineError
				if errors.As(err, &le) {
					at = le.index
				}
				return sec.errorf(path, f.name, at, err)
			}
			cur = next
			continue
		}
		if at >= len(lines) {
			return sec.errorf(path, f.name, at, fmt.Errorf("%w: section ends before field", ErrMissingField))
		}
		if err := f.parse(e, lines[at]); err != nil {
			return sec.errorf(path, f.name, at, err)
		}
		cur = at + 1
	}
	return nil
}

// encode renders e as data lines in schema order.
func encode[T any](fields []field[T], e *T, ambient model.Geometry) ([]string, error) {
	var out []string
	for _, f := range fields {
		if f.when != nil && !f.when(e, ambient) {
			continue
		}
		if f.block != nil {
			lines, err := f.block.render(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			out = append(out, lines...)
			continue
		}
		out = append(out, tokens.Line(f.value(e), f.annotation(e)))
	}
	return out, nil
}

func stringField[T any](name, note string, p func(*T) *string, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error { *p(e) = tokens.Value(line); return nil },
		value: func(e *T) string { return *p(e) },
	}
}

func floatField[T any](name, note string, p func(*T) *float64, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			v, err := tokens.Float(line)
			if err != nil {
				return err
			}
			*p(e) = v
			return nil
		},
		value: func(e *T) string { return tokens.FormatFloat(*p(e)) },
	}
}

func intField[T any](name, note string, p func(*T) *int, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			v, err := tokens.Int(line)
			if err != nil {
				return err
			}
			*p(e) = v
			return nil
		},
		value: func(e *T) string { return fmt.Sprint(*p(e)) },
	}
}

func boolField[T any](name, note string, p func(*T) *bool, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			v, err := tokens.Bool(line)
			if err != nil {
				return err
			}
			*p(e) = v
			return nil
		},
		value: func(e *T) string { return tokens.FormatBool(*p(e)) },
	}
}

// floatsField is a fixed-width tuple of floats on one line.
func floatsField[T any](name, note string, p func(*T) []*float64, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			dst := p(e)
			vals, err := tokens.Floats(line, len(dst))
			if err != nil {
				return err
			}
			for i, v := range vals {
				*dst[i] = v
			}
			return nil
		},
		value: func(e *T) string {
			src := p(e)
			vals := make([]float64, len(src))
			for i, v := range src {
				vals[i] = *v
			}
			return tokens.JoinFloats(vals)
		},
	}
}

// intsField is a fixed-width tuple of integers on one line.
func intsField[T any](name, note string, p func(*T) []*int, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			dst := p(e)
			vals, err := tokens.Ints(line, len(dst))
			if err != nil {
				return err
			}
			for i, v := range vals {
				*dst[i] = v
			}
			return nil
		},
		value: func(e *T) string {
			src := p(e)
			vals := make([]int, len(src))
			for i, v := range src {
				vals[i] = *v
			}
			return tokens.JoinInts(vals)
		},
	}
}

// intListField is a variable-length list of integers on one line.
func intListField[T any](name, note string, p func(*T) *[]int, keys ...string) field[T] {
	return field[T]{
		name: name, note: note, keys: keys,
		parse: func(e *T, line string) error {
			*p(e) = tokens.LeadingInts(line)
			return nil
		},
		value: func(e *T) string { return tokens.JoinInts(*p(e)) },
	}
}

// shapeFields is the geometry line followed by the geometry-specific
// dimensions. SameAsBeam renders the dimensions of the ambient geometry.
func shapeFields[T any](shape func(*T) *model.Shape) []field[T] {
	resolved := func(e *T, ambient model.Geometry) model.Geometry {
		return model.ResolveGeometry(shape(e).Geometry, ambient)
	}
	flat := func(e *T, ambient model.Geometry) bool { return resolved(e, ambient) == model.FlatPlate }
	cyl := func(e *T, ambient model.Geometry) bool { return resolved(e, ambient) == model.Cylindrical }

	thickness := floatsField("thickness", "Upstream and downstream thickness [cm]", func(e *T) []*float64 {
		s := shape(e)
		return []*float64{&s.UpstreamThickness, &s.DownstreamThickness}
	}, "upstream and downstream thickness")
	thickness.when = flat
	angle := floatsField("angle of rotation", "Angle of rotation and sample width (cm)", func(e *T) []*float64 {
		s := shape(e)
		return []*float64{&s.AngleOfRotation, &s.SampleWidth}
	}, "angle of rotation")
	angle.when = flat
	radii := floatsField("radii", "Inner and outer radii (cm)", func(e *T) []*float64 {
		s := shape(e)
		return []*float64{&s.InnerRadius, &s.OuterRadius}
	}, "inner and outer radii")
	radii.when = cyl
	height := floatField("sample height", "Sample height (cm)", func(e *T) *float64 { return &shape(e).SampleHeight }, "sample height")
	height.when = cyl

	geometry := field[T]{
		name: "geometry", note: "Geometry", keys: []string{"geometry"},
		parse: func(e *T, line string) error {
			g, err := model.ParseGeometry(tokens.First(line))
			if err != nil {
				return err
			}
			shape(e).Geometry = g
			return nil
		},
		value: func(e *T) string { return shape(e).Geometry.String() },
	}
	return []field[T]{geometry, thickness, angle, radii, height}
}

// densityField applies the sign convention: a negative density is in
// atoms/Å^3, a positive one in gm/cm^3. The magnitude is stored.
func densityField[T any](p func(*T) (*float64, *model.UnitsOfDensity)) field[T] {
	return field[T]{
		name: "density", keys: []string{"density"},
		parse: func(e *T, line string) error {
			v, err := tokens.Float(line)
			if err != nil {
				return err
			}
			d, u := p(e)
			if math.Signbit(v) {
				*u = model.Atomic
			} else {
				*u = model.Chemical
			}
			*d = math.Abs(v)
			return nil
		},
		value: func(e *T) string {
			d, u := p(e)
			if *u == model.Atomic {
				return tokens.FormatFloat(-*d)
			}
			return tokens.FormatFloat(*d)
		},
		noteFn: func(e *T) string {
			if _, u := p(e); *u == model.Atomic {
				return "Density atoms/Å^3?"
			}
			return "Density gm/cm^3?"
		},
	}
}

// crossSectionField reads TABLES, TRANSMISSION, or a filename.
func crossSectionField[T any](p func(*T) (*model.CrossSectionSource, *string)) field[T] {
	return field[T]{
		name: "total cross section source", note: "Total cross section source",
		keys: []string{"total cross section source"},
		parse: func(e *T, line string) error {
			src, file := p(e)
			v := tokens.Value(line)
			switch {
			case strings.EqualFold(v, "TABLES"):
				*src, *file = model.Tables, ""
			case strings.EqualFold(v, "TRANSMISSION"):
				*src, *file = model.Transmission, ""
			default:
				*src, *file = model.File, v
			}
			return nil
		},
		value: func(e *T) string {
			src, file := p(e)
			if *src == model.File {
				return *file
			}
			return src.String()
		},
	}
}

// dataFilesBlock is the "N  period" count line followed by exactly N
// filename lines, each annotated "<label> data files".
func dataFilesBlock[T any](name string, p func(*T) *model.DataFiles, label func(*T) string) field[T] {
	return field[T]{
		name: name,
		keys: []string{"number of", "files and period"},
		block: &block[T]{
			parse: func(e *T, lines []string, i int) (int, error) {
				counts := tokens.LeadingInts(lines[i])
				if len(counts) == 0 {
					return 0, atLine(i, fmt.Errorf("no file count in %q", strings.TrimSpace(lines[i])))
				}
				n := counts[0]
				df := p(e)
				df.Name = label(e)
				df.Files = nil
				df.PeriodNumber = 0
				if len(counts) > 1 {
					df.PeriodNumber = counts[1]
				}
				for k := 0; k < n; k++ {
					j := i + 1 + k
					if j >= len(lines) || !tokens.ContainsFold(lines[j], "data files") {
						return 0, atLine(j, fmt.Errorf("%w: declared %d, found %d", ErrFileCount, n, k))
					}
					df.Files = append(df.Files, tokens.Value(lines[j]))
				}
				next := i + 1 + n
				if next < len(lines) && tokens.ContainsFold(lines[next], "data files") {
					return 0, atLine(next, fmt.Errorf("%w: declared %d, found more", ErrFileCount, n))
				}
				return next, nil
			},
			render: func(e *T) ([]string, error) {
				df := p(e)
				out := []string{tokens.Line(tokens.Join(len(df.Files), df.PeriodNumber), "Number of  files and period number")}
				for _, f := range df.Files {
					out = append(out, tokens.Line(f, label(e)+" data files"))
				}
				return out, nil
			},
		},
	}
}

const compositionEnd = "*  0  0"

// compositionBlock is the element list terminated by a "*" line. Weighted
// components are translated into elements on output.
func compositionBlock[T any](note string, p func(*T) *model.Composition) field[T] {
	return field[T]{
		name: "composition",
		block: &block[T]{
			parse: func(e *T, lines []string, i int) (int, error) {
				c := p(e)
				c.Elements = nil
				for i = skipBlank(lines, i); ; i++ {
					if i >= len(lines) {
						return 0, atLine(i, fmt.Errorf("%w: unterminated composition", ErrStructure))
					}
					f := tokens.Fields(lines[i])
					if len(f) > 0 && f[0] == "*" {
						return i + 1, nil
					}
					if len(f) < 3 {
						return 0, atLine(i, fmt.Errorf("element line needs symbol, mass number and abundance: %q", strings.TrimSpace(lines[i])))
					}
					mass, err := tokens.Int(f[1])
					if err != nil {
						return 0, atLine(i, err)
					}
					abundance, err := tokens.Float(f[2])
					if err != nil {
						return 0, atLine(i, err)
					}
					c.Elements = append(c.Elements, model.Element{Symbol: f[0], MassNo: mass, Abundance: abundance})
				}
			},
			render: func(e *T) ([]string, error) {
				c := p(e).Clone()
				c.Translate()
				var out []string
				for _, el := range c.Elements {
					out = append(out, tokens.Line(tokens.Join(el.Symbol, el.MassNo, el.Abundance), note))
				}
				return append(out, tokens.Line(compositionEnd, "* 0 0 to specify end of composition input")), nil
			},
		},
	}
}
