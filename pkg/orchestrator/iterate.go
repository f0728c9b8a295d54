// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/gudrunctl/pkg/engine"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Iterate purges and then runs s to completion. The run stops at the first
// failing step; the returned *Error names its iteration.
func (o *Orchestrator) Iterate(ctx context.Context, gf *model.GudrunFile, s iterate.Strategy) (*model.GudrunFile, *Outcome, error) {
	work := gf.Clone()
	op := o.begin(OpIterate, work)
	logf("strategy %s, %d iteration(s)", s.Name(), s.Iterations())

	purgeDir, err := o.prepare(ctx, op, work)
	if err != nil {
		return work, op.out, o.finish(op, err)
	}
	base := filepath.Join(o.gudrunDir(work), s.Name())
	runs, err := o.iterateIn(ctx, op.name, work, s, purgeDir, base)
	op.out.Runs = append(op.out.Runs, runs...)
	if len(runs) > 0 {
		work.OutputDir = runs[len(runs)-1].Path
		op.out.OutputDir = base
	}
	return work, op.out, o.finish(op, err)
}

// stepDir is the output directory of one strategy step under base.
func stepDir(base string, st iterate.Step, phases int) string {
	if st.Default {
		return filepath.Join(base, "Default")
	}
	dir := filepath.Join(base, fmt.Sprintf("Iteration_%d", st.Iteration+1))
	if phases > 1 {
		dir = filepath.Join(dir, fmt.Sprintf("Phase_%d", st.Phase+1))
	}
	return dir
}

// iterateIn drives the state machine of s over work. Each step runs the
// reduction engine once; the next step starts only after every running
// sample's result report has been read.
func (o *Orchestrator) iterateIn(ctx context.Context, opName string, work *model.GudrunFile, s iterate.Strategy, purgeDir, base string) ([]*engine.OutputDir, error) {
	m := iterate.NewMachine(s)
	var runs []*engine.OutputDir
	var prev iterate.Results

	fail := func(st iterate.Step, stage string, err error) error {
		m.Fail(err)
		e := newError(opName, stage, err)
		e.Default = st.Default
		if !st.Default {
			e.Iteration = st.Iteration
		}
		return e
	}

	for st, ok := m.Next(); ok; st, ok = m.Next() {
		if err := ctx.Err(); err != nil {
			return runs, fail(st, StageReduce, err)
		}
		logf("%s: %s", s.Name(), st)
		if !st.Default {
			if err := s.Before(st.Iteration, st.Phase, work, prev); err != nil {
				return runs, fail(st, StageMutate, err)
			}
		}
		od, err := o.engine.Reduce(ctx, work, purgeDir, stepDir(base, st, s.Phases()))
		if err != nil {
			return runs, fail(st, StageReduce, err)
		}
		if err := checkResults(work, od); err != nil {
			return runs, fail(st, StageResults, err)
		}
		if !st.Default {
			if err := s.After(st.Iteration, st.Phase, work, od); err != nil {
				return runs, fail(st, StageMutate, err)
			}
		}
		runs = append(runs, od)
		prev = od
		m.Succeed()
	}
	return runs, nil
}

// checkResults parses the result report of every running sample.
func checkResults(gf *model.GudrunFile, res iterate.Results) error {
	for _, s := range gf.RunningSamples() {
		gud, err := res.ReadGudFile(s)
		if err != nil {
			return err
		}
		if gud.Warning() {
			warnf("sample %s: %s", s.Name, gud.Message())
		}
	}
	return nil
}
