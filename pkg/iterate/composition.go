// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package iterate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/optimize"

	"github.com/mesh-intelligence/gudrunctl/pkg/gudfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Method selects the 1-D minimizer of a composition search.
type Method int

const (
	MethodGoldenSection Method = iota
	MethodNelderMead
)

func (m Method) String() string {
	if m == MethodNelderMead {
		return "nelder-mead"
	}
	return "golden-section"
}

// ParseMethod parses "golden-section" or "nelder-mead". Empty means
// golden section.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "golden", "golden-section":
		return MethodGoldenSection, nil
	case "nelder-mead", "simplex":
		return MethodNelderMead, nil
	}
	return 0, fmt.Errorf("unknown search method %q (want golden-section or nelder-mead)", s)
}

// CostFunc evaluates a candidate ratio. Each call is one reduction run.
type CostFunc func(x float64) (float64, error)

// SearchResult is the outcome of a composition search.
type SearchResult struct {
	X           float64
	Cost        float64
	Iterations  int
	Evaluations int
	// Converged is false when the budget ran out; X is then the fallback.
	Converged bool
}

// CompositionSearch treats the ratio of one or two weighted components of
// a sample as the free variable of a 1-D minimization.
type CompositionSearch struct {
	Components     []string
	TotalMolecules float64
	// Bracket is lower, center, upper.
	Bracket       [3]float64
	MaxIterations int
	RelTolerance  float64
	// FallbackRatio is used when the search does not converge. Required.
	FallbackRatio *float64
	Method        Method
}

// Validate rejects a search that cannot run.
func (c *CompositionSearch) Validate() error {
	switch {
	case len(c.Components) < 1 || len(c.Components) > 2:
		return fmt.Errorf("composition search needs one or two components, got %d", len(c.Components))
	case c.FallbackRatio == nil:
		return errors.New("composition search needs a fallback ratio")
	case !(c.Bracket[0] < c.Bracket[1] && c.Bracket[1] < c.Bracket[2]):
		return fmt.Errorf("bracket %v is not ordered lower < center < upper", c.Bracket)
	case c.MaxIterations < 1:
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	case c.RelTolerance <= 0:
		return fmt.Errorf("relative tolerance must be positive, got %g", c.RelTolerance)
	}
	return nil
}

// Apply sets the component ratios of s for candidate x and re-translates
// its composition. A second component takes TotalMolecules - x.
func (c *CompositionSearch) Apply(s *model.Sample, x float64) error {
	ratios := []float64{x, c.TotalMolecules - x}
	for i, name := range c.Components {
		wc := s.Composition.WeightedComponent(name)
		if wc == nil {
			return fmt.Errorf("sample %s has no weighted component %q", s.Name, name)
		}
		wc.Ratio = ratios[i]
	}
	s.Composition.Translate()
	return nil
}

// Cost is 0 when the merged DCS level matches the expected level, else
// the squared difference.
func Cost(gud *gudfile.GudFile) float64 {
	if gud.AverageLevelMergedDCS == gud.ExpectedDCS {
		return 0
	}
	d := gud.ExpectedDCS - gud.AverageLevelMergedDCS
	return d * d
}

// Minimize runs the configured method over cost.
func (c *CompositionSearch) Minimize(cost CostFunc) (SearchResult, error) {
	if err := c.Validate(); err != nil {
		return SearchResult{}, err
	}
	var res SearchResult
	var err error
	switch c.Method {
	case MethodNelderMead:
		res, err = NelderMead(cost, c.Bracket, c.MaxIterations, c.RelTolerance)
	default:
		res, err = GoldenSection(cost, c.Bracket, c.MaxIterations, c.RelTolerance)
	}
	if err != nil {
		return res, err
	}
	if !res.Converged {
		res.X = *c.FallbackRatio
	}
	return res, nil
}

const (
	goldenR = 0.61803399
	goldenC = 1 - goldenR
)

// GoldenSection minimizes cost within bracket (lower, center, upper).
// It stops early when a candidate costs exactly zero.
func GoldenSection(cost CostFunc, bracket [3]float64, maxIter int, tol float64) (SearchResult, error) {
	xa, xb, xc := bracket[0], bracket[1], bracket[2]
	var res SearchResult
	eval := func(x float64) (float64, error) {
		res.Evaluations++
		return cost(x)
	}

	x0, x3 := xa, xc
	var x1, x2 float64
	if math.Abs(xc-xb) > math.Abs(xb-xa) {
		x1, x2 = xb, xb+goldenC*(xc-xb)
	} else {
		x1, x2 = xb-goldenC*(xb-xa), xb
	}
	f1, err := eval(x1)
	if err != nil {
		return res, err
	}
	f2 := math.Inf(1)
	if f1 != 0 {
		if f2, err = eval(x2); err != nil {
			return res, err
		}
	}

	narrow := func() bool { return math.Abs(x3-x0) <= tol*(math.Abs(x1)+math.Abs(x2)) }
	for res.Iterations < maxIter {
		if f1 == 0 || f2 == 0 || narrow() {
			break
		}
		if f2 < f1 {
			x0, x1 = x1, x2
			x2 = goldenR*x1 + goldenC*x3
			f1 = f2
			if f2, err = eval(x2); err != nil {
				return res, err
			}
		} else {
			x3, x2 = x2, x1
			x1 = goldenR*x2 + goldenC*x0
			f2 = f1
			if f1, err = eval(x1); err != nil {
				return res, err
			}
		}
		res.Iterations++
	}

	if f1 <= f2 {
		res.X, res.Cost = x1, f1
	} else {
		res.X, res.Cost = x2, f2
	}
	res.Converged = res.Cost == 0 || narrow()
	return res, nil
}

// NelderMead minimizes cost with the gonum simplex method, starting at the
// bracket center. Candidates outside the bracket are rejected without an
// evaluation.
func NelderMead(cost CostFunc, bracket [3]float64, maxIter int, tol float64) (SearchResult, error) {
	res := SearchResult{Cost: math.Inf(1)}
	var costErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if costErr != nil || x[0] < bracket[0] || x[0] > bracket[2] {
				return math.Inf(1)
			}
			res.Evaluations++
			f, err := cost(x[0])
			if err != nil {
				costErr = err
				return math.Inf(1)
			}
			if f < res.Cost {
				res.X, res.Cost = x[0], f
			}
			return f
		},
		Status: func() (optimize.Status, error) {
			if costErr != nil {
				return optimize.Failure, costErr
			}
			if res.Cost == 0 {
				return optimize.MethodConverge, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Concurrent:      1,
		Converger: &optimize.FunctionConverge{
			Relative:   tol,
			Iterations: 5,
		},
	}
	method := &optimize.NelderMead{SimplexSize: (bracket[2] - bracket[0]) / 4}

	out, err := optimize.Minimize(problem, []float64{bracket[1]}, settings, method)
	if costErr != nil {
		return res, costErr
	}
	if out == nil {
		return res, fmt.Errorf("nelder-mead: %w", err)
	}
	if out.F < res.Cost {
		res.X, res.Cost = out.X[0], out.F
	}
	res.Iterations = out.Stats.MajorIterations
	switch out.Status {
	case optimize.MethodConverge, optimize.FunctionConvergence, optimize.StepConvergence, optimize.Success:
		res.Converged = err == nil
	}
	if res.Cost == 0 {
		res.Converged = true
	}
	return res, nil
}
