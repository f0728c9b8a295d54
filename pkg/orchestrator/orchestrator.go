// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package orchestrator sequences purge and reduction engine runs over a
// configuration: plain runs, iterative runs under a strategy,
// composition-ratio searches, structural run modes and batch processing.
// Every operation works on a deep copy of its input and returns the
// mutated copy with an Outcome; failures are returned as *Error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/gudrunctl/pkg/engine"
	"github.com/mesh-intelligence/gudrunctl/pkg/fsutil"
	"github.com/mesh-intelligence/gudrunctl/pkg/history"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/project"
)

// Operation names, used for output directories, logs and the ledger.
const (
	OpRun                 = "run"
	OpIterate             = "iterate"
	OpComposition         = "composition"
	OpContainersAsSamples = "containers-as-samples"
	OpPerFile             = "per-file"
	OpBatch               = "batch"
)

// Engine runs the external engines. *engine.Runner implements it.
type Engine interface {
	Purge(ctx context.Context, gf *model.GudrunFile, opts engine.PurgeOptions, outDir string) (*engine.PurgeResult, error)
	Reduce(ctx context.Context, gf *model.GudrunFile, purgeDir, outDir string) (*engine.OutputDir, error)
}

// Orchestrator runs operations with one configuration.
type Orchestrator struct {
	cfg     Config
	engine  Engine
	history *history.Store
	now     func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithEngine replaces the subprocess engine runner.
func WithEngine(e Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithHistory records every operation in h.
func WithHistory(h *history.Store) Option {
	return func(o *Orchestrator) { o.history = h }
}

// New creates an Orchestrator. Without WithEngine the engines are run as
// subprocesses from cfg.BinDir.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		var echo io.Writer
		if !cfg.Silence() {
			echo = os.Stdout
		}
		o.engine = engine.NewRunner(cfg.BinDir, currentLogger().Named("engine"), echo)
	}
	return o
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Outcome records what an operation produced.
type Outcome struct {
	Operation string
	OutputDir string
	Purge     *engine.PurgeResult
	// Runs holds every successful reduction run in order.
	Runs []*engine.OutputDir
	// Searches holds the composition search result per sample.
	Searches map[string]iterate.SearchResult
	Batches  []BatchOutcome
}

func (out *Outcome) runCount() int {
	n := len(out.Runs)
	for _, b := range out.Batches {
		n += b.Runs
	}
	return n
}

// operation tracks one orchestrated call from begin to finish.
type operation struct {
	name    string
	gf      *model.GudrunFile
	start   time.Time
	out     *Outcome
	closeFn func()
}

func (o *Orchestrator) begin(name string, gf *model.GudrunFile) *operation {
	op := &operation{name: name, gf: gf, start: o.now(), out: &Outcome{Operation: name}}
	setPhase(name)
	if o.cfg.LogToFile {
		logName := fmt.Sprintf("%s-%s.log", op.start.Format("20060102-150405"), name)
		if closeFn, err := openLogSink(o.gudrunDir(gf), logName); err != nil {
			warnf("log sink: %v", err)
		} else {
			op.closeFn = closeFn
		}
	}
	logf("starting in %s", o.projectDir(gf))
	return op
}

// finish logs and records the operation and passes err through.
func (o *Orchestrator) finish(op *operation, err error) error {
	d := o.now().Sub(op.start)
	status := history.StatusSucceeded
	if err != nil {
		status = history.StatusFailed
		warnf("failed after %s: %v", d.Round(time.Millisecond), err)
	} else {
		logf("finished in %s, %d run(s)", d.Round(time.Millisecond), op.out.runCount())
	}
	if o.history != nil {
		rec := &history.Record{
			Operation: op.name,
			Project:   o.projectDir(op.gf),
			StartedAt: op.start,
			Duration:  d,
			Status:    status,
			Runs:      op.out.runCount(),
			OutputDir: op.out.OutputDir,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if herr := o.history.Record(rec); herr != nil {
			warnf("history: %v", herr)
		}
	}
	if op.closeFn != nil {
		op.closeFn()
	}
	clearPhase()
	return err
}

func (o *Orchestrator) projectDir(gf *model.GudrunFile) string {
	if gf.ProjectDir != "" {
		return gf.ProjectDir
	}
	return o.cfg.ProjectDir
}

func (o *Orchestrator) purgeDir(gf *model.GudrunFile) string {
	return filepath.Join(o.projectDir(gf), project.PurgeDirName)
}

func (o *Orchestrator) gudrunDir(gf *model.GudrunFile) string {
	return filepath.Join(o.projectDir(gf), project.GudrunDirName)
}

// validate rejects configurations that cannot be run.
func validate(gf *model.GudrunFile) error {
	var errs []error
	for _, sb := range gf.SampleBackgrounds {
		for _, s := range sb.Samples {
			if s.RunThisSample && len(s.DataFiles.Files) == 0 {
				errs = append(errs, fmt.Errorf("sample %s is set to run but has no data files", s.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// purge runs the purge engine when enabled and returns the directory the
// reduction runs should read purge outputs from.
func (o *Orchestrator) purge(ctx context.Context, op *operation, work *model.GudrunFile) (string, error) {
	dir := o.purgeDir(work)
	if !o.cfg.PurgeEnabled() {
		if fsutil.Exists(dir) {
			warnf("purge skipped, reusing %s", dir)
			return dir, nil
		}
		warnf("purge skipped and no previous purge output found; detectors will not be screened")
		return "", nil
	}
	res, err := o.engine.Purge(ctx, work, o.cfg.PurgeOptions(), dir)
	if err != nil {
		return "", newError(op.name, StagePurge, err)
	}
	op.out.Purge = res
	if res.SpectraPurged >= 0 {
		logf("purge: %d spectra purged", res.SpectraPurged)
	}
	return dir, nil
}

// prepare validates work and purges.
func (o *Orchestrator) prepare(ctx context.Context, op *operation, work *model.GudrunFile) (string, error) {
	if err := validate(work); err != nil {
		return "", newError(op.name, StageValidate, err)
	}
	return o.purge(ctx, op, work)
}

// reduceOnce runs a single reduction of work into outDir.
func (o *Orchestrator) reduceOnce(ctx context.Context, op *operation, work *model.GudrunFile, outDir string) error {
	purgeDir, err := o.prepare(ctx, op, work)
	if err != nil {
		return err
	}
	od, err := o.engine.Reduce(ctx, work, purgeDir, outDir)
	if err != nil {
		return newError(op.name, StageReduce, err)
	}
	op.out.Runs = append(op.out.Runs, od)
	op.out.OutputDir = od.Path
	work.OutputDir = od.Path
	return nil
}

// Run purges and then reduces gf once.
func (o *Orchestrator) Run(ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *Outcome, error) {
	work := gf.Clone()
	op := o.begin(OpRun, work)
	err := o.reduceOnce(ctx, op, work, filepath.Join(o.gudrunDir(work), "Default"))
	return work, op.out, o.finish(op, err)
}

// RunContainersAsSamples runs every container flagged RunAsSample as an
// independent sample.
func (o *Orchestrator) RunContainersAsSamples(ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *Outcome, error) {
	work := model.ContainersAsSamples(gf)
	op := o.begin(OpContainersAsSamples, work)
	n := len(work.RunningSamples())
	if n == 0 {
		warnf("no container is flagged runAsSample")
	}
	logf("%d container(s) promoted to samples", n)
	err := o.reduceOnce(ctx, op, work, filepath.Join(o.gudrunDir(work), "ContainersAsSamples"))
	return work, op.out, o.finish(op, err)
}

// RunPerFile runs every data file of every running sample as its own
// sample.
func (o *Orchestrator) RunPerFile(ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *Outcome, error) {
	work := model.PartitionByFile(gf)
	op := o.begin(OpPerFile, work)
	logf("partitioned into %d single-file sample(s)", len(work.RunningSamples()))
	err := o.reduceOnce(ctx, op, work, filepath.Join(o.gudrunDir(work), "PerFile"))
	return work, op.out, o.finish(op, err)
}
