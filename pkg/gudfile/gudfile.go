// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package gudfile parses the per-sample result report the reduction
// engine writes after each run.
package gudfile

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// Extension is the suffix of result reports.
const Extension = ".gud"

// GudFile is one parsed result report. Exactly one of Err and Result is
// set: Err holds the warning block, Result the single success line.
type GudFile struct {
	Path string

	Name   string
	Title  string
	Author string
	Stamp  string

	AtomicDensity                   float64
	ChemicalDensity                 float64
	AverageScatteringLength         float64
	AverageScatteringLengthSquared  float64
	AverageSquareOfScatteringLength float64
	CoherentRatio                   float64
	ExpectedDCS                     float64

	Groups []string

	AverageLevelMergedDCS float64
	GradientMergedDCS     float64

	Err    string
	Result string

	// Output is the signed percentage the merged level lies off the
	// expected level, e.g. "-5.0%".
	Output string

	SuggestedTweakFactor string
}

// ParseError wraps any failure to read a result report.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing result file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	numberRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Parse reads and parses the result report at path.
func Parse(path string) (*GudFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return ParseBytes(data, path)
}

// ParseBytes parses a result report held in memory.
func ParseBytes(data []byte, path string) (*GudFile, error) {
	gf := &GudFile{Path: path}
	if err := gf.parse(string(data)); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return gf, nil
}

type lineReader struct {
	lines []string
	i     int
}

func (r *lineReader) next() (string, error) {
	if r.i >= len(r.lines) {
		return "", errors.New("unexpected end of file")
	}
	l := r.lines[r.i]
	r.i++
	return l, nil
}

func (r *lineReader) skipBlank() {
	for r.i < len(r.lines) && strings.TrimSpace(r.lines[r.i]) == "" {
		r.i++
	}
}

func (gf *GudFile) parse(text string) error {
	r := &lineReader{lines: strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")}

	for _, dst := range []*string{&gf.Name, &gf.Title, &gf.Author, &gf.Stamp} {
		l, err := r.next()
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(l)
		if _, err := r.next(); err != nil {
			return err
		}
	}

	for _, dst := range []*float64{
		&gf.AtomicDensity,
		&gf.ChemicalDensity,
		&gf.AverageScatteringLength,
		&gf.AverageScatteringLengthSquared,
		&gf.AverageSquareOfScatteringLength,
		&gf.CoherentRatio,
		&gf.ExpectedDCS,
	} {
		l, err := r.next()
		if err != nil {
			return err
		}
		tok, err := tokens.Last(l)
		if err != nil {
			return err
		}
		if *dst, err = strconv.ParseFloat(tok, 64); err != nil {
			return err
		}
	}

	for {
		l, err := r.next()
		if err != nil {
			return fmt.Errorf("groups table: %w", err)
		}
		if strings.TrimSpace(l) == "" {
			break
		}
		gf.Groups = append(gf.Groups, strings.TrimSpace(l))
	}

	r.skipBlank()
	l, err := r.next()
	if err != nil {
		return err
	}
	tok, err := tokens.FromEnd(l, 2)
	if err != nil {
		return fmt.Errorf("average level of merged dcs: %w", err)
	}
	if gf.AverageLevelMergedDCS, err = strconv.ParseFloat(tok, 64); err != nil {
		return fmt.Errorf("average level of merged dcs: %w", err)
	}

	l, err = r.next()
	if err != nil {
		return err
	}
	tok, err = tokens.FromEnd(l, 4)
	if err != nil {
		return fmt.Errorf("gradient of merged dcs: %w", err)
	}
	if gf.GradientMergedDCS, err = strconv.ParseFloat(strings.TrimSuffix(tok, "%"), 64); err != nil {
		return fmt.Errorf("gradient of merged dcs: %w", err)
	}

	r.skipBlank()
	l, err = r.next()
	if err != nil {
		return err
	}
	if strings.Contains(l, "WARNING!") {
		block := []string{strings.TrimSpace(l)}
		for r.i < len(r.lines) && !strings.Contains(r.lines[r.i], "Suggested tweak factor") {
			block = append(block, strings.TrimSpace(r.lines[r.i]))
			r.i++
		}
		gf.Err = strings.TrimSpace(strings.Join(block, "\n"))
	} else {
		gf.Result = strings.TrimSpace(l)
	}

	if gf.Output, err = outputSignal(gf.Message()); err != nil {
		return err
	}

	last := ""
	for _, l := range r.lines[r.i:] {
		if strings.TrimSpace(l) != "" {
			last = l
		}
	}
	if gf.SuggestedTweakFactor, err = tokens.Last(last); err != nil {
		return fmt.Errorf("suggested tweak factor: %w", err)
	}
	return nil
}

// outputSignal derives the signed deviation from the report text.
func outputSignal(text string) (string, error) {
	switch {
	case strings.Contains(text, "BELOW"):
		m := percentRe.FindStringSubmatch(text)
		if m == nil {
			return "", errors.New("no percentage in BELOW message")
		}
		return "-" + m[1] + "%", nil
	case strings.Contains(text, "ABOVE"):
		m := percentRe.FindStringSubmatch(text)
		if m == nil {
			return "", errors.New("no percentage in ABOVE message")
		}
		return "+" + m[1] + "%", nil
	}
	m := numberRe.FindString(text)
	if m == "" {
		return "", fmt.Errorf("no percentage in result %q", text)
	}
	p, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return "", err
	}
	switch {
	case p < 100:
		return "-" + tokens.FormatFloat(100-p) + "%", nil
	case p > 100:
		return "+" + tokens.FormatFloat(p-100) + "%", nil
	}
	return "0%", nil
}

// Message returns whichever of Err and Result is set.
func (gf *GudFile) Message() string {
	if gf.Err != "" {
		return gf.Err
	}
	return gf.Result
}

// Warning reports whether the engine flagged the run.
func (gf *GudFile) Warning() bool { return gf.Err != "" }

// TweakFactor parses the engine's suggested tweak factor.
func (gf *GudFile) TweakFactor() (float64, error) {
	v, err := strconv.ParseFloat(gf.SuggestedTweakFactor, 64)
	if err != nil {
		return 0, fmt.Errorf("suggested tweak factor in %s: %w", gf.Path, err)
	}
	return v, nil
}

// Coefficient is the ratio of the merged level to the expected level.
func (gf *GudFile) Coefficient() (float64, error) {
	if gf.ExpectedDCS == 0 {
		return 0, fmt.Errorf("expected DCS is zero in %s", gf.Path)
	}
	return gf.AverageLevelMergedDCS / gf.ExpectedDCS, nil
}
