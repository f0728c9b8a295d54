// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package iterate holds the controllers that mutate a configuration
// between reduction runs. Only running samples are touched.
package iterate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/gudrunctl/pkg/gudfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Results exposes the outputs of a completed reduction run.
type Results interface {
	ReadGudFile(s *model.Sample) (*gudfile.GudFile, error)
	SampleFile(s *model.Sample, ext string) string
}

// Strategy mutates a configuration around each reduction run. Iteration k
// runs Phases() reduction runs; Before is called ahead of each and After
// once it has succeeded.
type Strategy interface {
	Name() string
	Iterations() int
	// DefaultRun reports whether an unmodified run precedes iteration 0.
	DefaultRun() bool
	Phases() int
	// Before mutates gf ahead of iteration k, phase p. prev holds the
	// results of the previous run and is nil ahead of the first run.
	Before(k, p int, gf *model.GudrunFile, prev Results) error
	After(k, p int, gf *model.GudrunFile, res Results) error
}

type base struct {
	name       string
	iterations int
}

func (b *base) Name() string      { return b.name }
func (b *base) Iterations() int   { return b.iterations }
func (b *base) DefaultRun() bool  { return true }
func (b *base) Phases() int       { return 1 }
func (b *base) Before(int, int, *model.GudrunFile, Results) error { return nil }
func (b *base) After(int, int, *model.GudrunFile, Results) error  { return nil }

// Coefficient returns averageLevelMergedDCS / expectedDCS for s from res.
func Coefficient(res Results, s *model.Sample) (float64, error) {
	gud, err := res.ReadGudFile(s)
	if err != nil {
		return 0, err
	}
	return gud.Coefficient()
}

// coefficientStrategy multiplies one attribute of each running sample by
// the coefficient of its previous result.
type coefficientStrategy struct {
	base
	apply func(s *model.Sample, c float64)
}

func (cs *coefficientStrategy) Before(_, _ int, gf *model.GudrunFile, prev Results) error {
	if prev == nil {
		return nil
	}
	for _, s := range gf.RunningSamples() {
		c, err := Coefficient(prev, s)
		if err != nil {
			return fmt.Errorf("sample %s: %w", s.Name, err)
		}
		cs.apply(s, c)
	}
	return nil
}

// NewThickness scales each sample's total thickness and splits it evenly
// between upstream and downstream.
func NewThickness(iterations int) Strategy {
	return &coefficientStrategy{
		base: base{name: "thickness", iterations: iterations},
		apply: func(s *model.Sample, c float64) {
			s.SetTotalThickness(s.TotalThickness() * c)
		},
	}
}

// NewDensity scales each sample's density.
func NewDensity(iterations int) Strategy {
	return &coefficientStrategy{
		base:  base{name: "density", iterations: iterations},
		apply: func(s *model.Sample, c float64) { s.Density *= c },
	}
}

// Radius selects which radius NewRadius scales.
type Radius int

const (
	InnerRadius Radius = iota
	OuterRadius
)

// ParseRadius parses "inner" or "outer".
func ParseRadius(s string) (Radius, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner":
		return InnerRadius, nil
	case "outer", "":
		return OuterRadius, nil
	}
	return 0, fmt.Errorf("unknown radius %q (want inner or outer)", s)
}

// NewRadius scales each sample's inner or outer radius.
func NewRadius(target Radius, iterations int) Strategy {
	name, apply := "outer-radius", func(s *model.Sample, c float64) { s.OuterRadius *= c }
	if target == InnerRadius {
		name, apply = "inner-radius", func(s *model.Sample, c float64) { s.InnerRadius *= c }
	}
	return &coefficientStrategy{base: base{name: name, iterations: iterations}, apply: apply}
}

// tweakFactor replaces each sample's tweak factor with the engine's own
// suggestion after every run.
type tweakFactor struct {
	base
}

// NewTweakFactor returns the tweak factor strategy. It needs no default run.
func NewTweakFactor(iterations int) Strategy {
	return &tweakFactor{base{name: "tweak-factor", iterations: iterations}}
}

func (t *tweakFactor) DefaultRun() bool { return false }

func (t *tweakFactor) After(_, _ int, gf *model.GudrunFile, res Results) error {
	for _, s := range gf.RunningSamples() {
		gud, err := res.ReadGudFile(s)
		if err != nil {
			return fmt.Errorf("sample %s: %w", s.Name, err)
		}
		tf, err := gud.TweakFactor()
		if err != nil {
			return fmt.Errorf("sample %s: %w", s.Name, err)
		}
		s.SampleTweakFactor = tf
	}
	return nil
}

var constructors = map[string]func(iterations int) Strategy{
	"tweak-factor":           NewTweakFactor,
	"thickness":              NewThickness,
	"density":                NewDensity,
	"inner-radius":           func(n int) Strategy { return NewRadius(InnerRadius, n) },
	"outer-radius":           func(n int) Strategy { return NewRadius(OuterRadius, n) },
	"wavelength-subtraction": NewWavelengthSubtraction,
}

// Names lists the strategies ByName accepts.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName constructs the named strategy.
func ByName(name string, iterations int) (Strategy, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", iterations)
	}
	c, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return c(iterations), nil
}
