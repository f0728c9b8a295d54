// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Search builds the composition search configured for s. The bracket
// center is the current ratio of the first component, or the midpoint of
// the bounds when that ratio lies outside them.
func (c *CompositionConfig) Search(s *model.Sample) (*iterate.CompositionSearch, error) {
	method, err := iterate.ParseMethod(c.Method)
	if err != nil {
		return nil, err
	}
	search := &iterate.CompositionSearch{
		Components:     c.Components,
		TotalMolecules: c.TotalMolecules,
		MaxIterations:  c.MaxIterations,
		RelTolerance:   c.RelTolerance,
		FallbackRatio:  c.FallbackRatio,
		Method:         method,
	}
	center := (c.Lower + c.Upper) / 2
	if len(c.Components) > 0 {
		if wc := s.Composition.WeightedComponent(c.Components[0]); wc != nil && wc.Ratio > c.Lower && wc.Ratio < c.Upper {
			center = wc.Ratio
		}
	}
	search.Bracket = [3]float64{c.Lower, center, c.Upper}
	return search, search.Validate()
}

// searchTargets returns the names of the samples to search.
func (c *CompositionConfig) searchTargets(gf *model.GudrunFile) ([]string, error) {
	if len(c.Samples) > 0 {
		for _, name := range c.Samples {
			s := gf.FindSample(name)
			if s == nil {
				return nil, fmt.Errorf("no sample named %q", name)
			}
			if !s.Running() {
				return nil, fmt.Errorf("sample %s is not set to run", name)
			}
		}
		return c.Samples, nil
	}
	if len(c.Components) == 0 {
		return nil, errors.New("no components configured")
	}
	var names []string
	for _, s := range gf.RunningSamples() {
		if s.Composition.WeightedComponent(c.Components[0]) != nil {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no running sample holds component %q", c.Components[0])
	}
	return names, nil
}

// ComposeRatios searches the mixing ratio of each target sample
// independently and leaves the final ratio in the returned copy. A search
// that does not converge leaves the fallback ratio.
func (o *Orchestrator) ComposeRatios(ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *Outcome, error) {
	work := gf.Clone()
	op := o.begin(OpComposition, work)
	op.out.Searches = map[string]iterate.SearchResult{}
	cc := o.cfg.Composition

	targets, err := cc.searchTargets(work)
	if err != nil {
		return work, op.out, o.finish(op, newError(op.name, StageValidate, err))
	}
	// Every search is validated before the first engine run.
	searches := make(map[string]*iterate.CompositionSearch, len(targets))
	for _, name := range targets {
		search, err := cc.Search(work.FindSample(name))
		if err != nil {
			e := newError(op.name, StageValidate, err)
			e.Sample = name
			return work, op.out, o.finish(op, e)
		}
		searches[name] = search
	}

	purgeDir, err := o.prepare(ctx, op, work)
	if err != nil {
		return work, op.out, o.finish(op, err)
	}
	base := filepath.Join(o.gudrunDir(work), "Composition")
	op.out.OutputDir = base

	for _, name := range targets {
		search := searches[name]
		logf("searching %v ratio of %s over %v with %s", cc.Components, name, search.Bracket, search.Method)
		evals := 0
		cost := func(x float64) (float64, error) {
			evals++
			cand := isolate(work, name)
			s := cand.FindSample(name)
			if err := search.Apply(s, x); err != nil {
				return 0, err
			}
			dir := filepath.Join(base, name, fmt.Sprintf("Evaluation_%d", evals))
			od, err := o.engine.Reduce(ctx, cand, purgeDir, dir)
			if err != nil {
				return 0, err
			}
			op.out.Runs = append(op.out.Runs, od)
			gud, err := od.ReadGudFile(s)
			if err != nil {
				return 0, err
			}
			c := iterate.Cost(gud)
			logf("%s: x=%g cost=%g", name, x, c)
			return c, nil
		}

		res, err := search.Minimize(cost)
		if err != nil {
			e := newError(op.name, StageSearch, err)
			e.Sample = name
			e.Iteration = evals - 1
			return work, op.out, o.finish(op, e)
		}
		if !res.Converged {
			warnf("%s: search did not converge in %d iteration(s), using fallback ratio %g", name, res.Iterations, res.X)
		}
		if err := search.Apply(work.FindSample(name), res.X); err != nil {
			e := newError(op.name, StageSearch, err)
			e.Sample = name
			return work, op.out, o.finish(op, e)
		}
		op.out.Searches[name] = res
	}
	work.Modified = true
	return work, op.out, o.finish(op, nil)
}

// isolate copies gf with only the named sample left running.
func isolate(gf *model.GudrunFile, name string) *model.GudrunFile {
	out := gf.Clone()
	for _, s := range out.RunningSamples() {
		if s.Name != name {
			s.RunThisSample = false
		}
	}
	return out
}
