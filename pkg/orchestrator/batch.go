// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/gudrunctl/pkg/engine"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// DiagnosticsFile is written into every batch output directory.
const DiagnosticsFile = "diagnostics.txt"

// SampleError is the relative error of one sample in one batch.
type SampleError struct {
	Sample    string
	Files     []string
	RelError  float64
	Attribute string
	Value     float64
}

// BatchOutcome records one completed batch.
type BatchOutcome struct {
	Index     int
	Dir       string
	Runs      int
	Samples   []SampleError
	Converged bool
}

// batchRoot is the output root of a batch run with the given size.
func (o *Orchestrator) batchRoot(gf *model.GudrunFile) string {
	return filepath.Join(o.gudrunDir(gf), fmt.Sprintf("BATCH_PROCESSING_BATCH_SIZE%d", o.cfg.Batch.Size))
}

func (o *Orchestrator) batchDir(root string, i int) string {
	if !o.cfg.Batch.SeparateFirstBatch {
		return filepath.Join(root, fmt.Sprintf("Batch_%d", i+1))
	}
	if i == 0 {
		return filepath.Join(root, "FIRST_BATCH")
	}
	return filepath.Join(root, "REST", fmt.Sprintf("Batch_%d", i))
}

// RunBatches splits every running sample's data files into batches and
// runs each batch as an independent configuration on a worker pool of
// Config.Workers. Batches run in rounds of that size; a round with a
// failure stops the run with every failure joined, and a round in which
// every sample is within Batch.RelTolerance of its expected level stops
// the run early.
func (o *Orchestrator) RunBatches(ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *Outcome, error) {
	work := gf.Clone()
	op := o.begin(OpBatch, work)
	bc := o.cfg.Batch

	firstSize := 0
	if bc.SeparateFirstBatch {
		firstSize = bc.FirstBatchSize
	}
	batches, err := model.Batches(work, bc.Size, firstSize)
	if err != nil {
		return work, op.out, o.finish(op, newError(op.name, StageValidate, err))
	}
	if bc.Strategy != "" {
		if _, err := strategyByName(bc.Strategy, bc.MaxIterations, o.cfg.Iteration.Radius); err != nil {
			return work, op.out, o.finish(op, newError(op.name, StageValidate, err))
		}
	}
	purgeDir, err := o.prepare(ctx, op, work)
	if err != nil {
		return work, op.out, o.finish(op, err)
	}
	root := o.batchRoot(work)
	op.out.OutputDir = root
	workers := max(o.cfg.Workers, 1)
	logf("%d batch(es) of size %d on %d worker(s)", len(batches), bc.Size, workers)

	for start := 0; start < len(batches); start += workers {
		end := min(start+workers, len(batches))
		results := make([]BatchOutcome, end-start)
		errs := make([]error, end-start)

		var g errgroup.Group
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i-start], errs[i-start] = o.runBatch(ctx, op.name, batches[i], i, purgeDir, o.batchDir(root, i))
				return nil
			})
		}
		_ = g.Wait()

		converged := true
		for i, r := range results {
			if errs[i] != nil {
				converged = false
				continue
			}
			op.out.Batches = append(op.out.Batches, r)
			converged = converged && r.Converged
		}
		if err := errors.Join(errs...); err != nil {
			return work, op.out, o.finish(op, err)
		}
		if bc.RelTolerance > 0 && converged && end < len(batches) {
			logf("every sample within %g after batch %d, stopping", bc.RelTolerance, end)
			break
		}
	}
	return work, op.out, o.finish(op, nil)
}

// runBatch reduces one batch configuration, under the batch strategy
// when one is configured, and writes its diagnostics.
func (o *Orchestrator) runBatch(ctx context.Context, opName string, b *model.GudrunFile, i int, purgeDir, dir string) (BatchOutcome, error) {
	bc := o.cfg.Batch
	out := BatchOutcome{Index: i, Dir: dir}
	wrap := func(err error) error {
		var e *Error
		if errors.As(err, &e) {
			e.Batch = i
			return e
		}
		e = newError(opName, StageReduce, err)
		e.Batch = i
		return e
	}

	var (
		last  *engine.OutputDir
		strat iterate.Strategy
	)
	if bc.Strategy == "" {
		od, err := o.engine.Reduce(ctx, b, purgeDir, dir)
		if err != nil {
			return out, wrap(err)
		}
		out.Runs, last = 1, od
	} else {
		var err error
		strat, err = strategyByName(bc.Strategy, bc.MaxIterations, o.cfg.Iteration.Radius)
		if err != nil {
			return out, wrap(err)
		}
		runs, err := o.iterateIn(ctx, opName, b, strat, purgeDir, dir)
		out.Runs = len(runs)
		if err != nil {
			return out, wrap(err)
		}
		last = runs[len(runs)-1]
	}

	out.Converged = true
	for _, s := range b.RunningSamples() {
		gud, err := last.ReadGudFile(s)
		if err != nil {
			e := wrap(err).(*Error)
			e.Stage, e.Sample = StageResults, s.Name
			return out, e
		}
		se := SampleError{Sample: s.Name, Files: s.DataFiles.Files, RelError: relError(gud.AverageLevelMergedDCS, gud.ExpectedDCS)}
		se.Attribute, se.Value = attribute(strat, s)
		out.Samples = append(out.Samples, se)
		if bc.RelTolerance <= 0 || se.RelError > bc.RelTolerance {
			out.Converged = false
		}
	}
	if err := writeDiagnostics(filepath.Join(dir, DiagnosticsFile), out); err != nil {
		e := wrap(err).(*Error)
		e.Stage = StageOutput
		return out, e
	}
	return out, nil
}

// relError is |actual - expected| / |expected|, or +Inf when expected is 0.
func relError(actual, expected float64) float64 {
	if expected == 0 {
		return math.Inf(1)
	}
	return math.Abs(actual-expected) / math.Abs(expected)
}

// attribute returns the sample attribute a strategy tweaks, keyed by the
// resolved strategy so "radius" reports the configured side.
func attribute(strat iterate.Strategy, s *model.Sample) (string, float64) {
	if strat == nil {
		return "", 0
	}
	switch strat.Name() {
	case "tweak-factor":
		return "sampleTweakFactor", s.SampleTweakFactor
	case "thickness":
		return "thickness", s.TotalThickness()
	case "density":
		return "density", s.Density
	case "inner-radius":
		return "innerRadius", s.InnerRadius
	case "outer-radius":
		return "outerRadius", s.OuterRadius
	}
	return "", 0
}

func writeDiagnostics(path string, b BatchOutcome) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %d\n\n", b.Index+1)
	for _, s := range b.Samples {
		fmt.Fprintf(&sb, "SAMPLE %s\n", s.Sample)
		fmt.Fprintf(&sb, "Data files: %s\n", strings.Join(s.Files, " "))
		fmt.Fprintf(&sb, "Error: %s\n", tokens.FormatFloat(s.RelError))
		if s.Attribute != "" {
			fmt.Fprintf(&sb, "%s: %s\n", s.Attribute, tokens.FormatFloat(s.Value))
		}
		sb.WriteString("\n")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
