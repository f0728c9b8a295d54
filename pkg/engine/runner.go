// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package engine runs the external purge and reduction engines. Each
// invocation gets a fresh temporary working directory; stdout is
// classified line by line and stderr output is always a failure. On
// success the files the engine wrote are moved into a permanent output
// directory.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/gudrunctl/pkg/fsutil"
	"github.com/mesh-intelligence/gudrunctl/pkg/gudfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/gudrunfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/tokens"
)

// Input filenames written into the working directory.
const (
	PurgeInputFile  = "purge_det.dat"
	ReduceInputFile = "gudpy.txt"
)

// AdditionalOutputs collects reduction outputs that belong to no sample.
const AdditionalOutputs = "Additional Outputs"

// RunError is a failed engine run. Output is the stdout read before the
// failure was detected, plus any stderr.
type RunError struct {
	Engine string
	Reason string
	Output string
	Err    error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Engine, e.Reason)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner invokes the engines.
type Runner struct {
	Binaries Binaries
	Executor Executor
	Logger   *zap.Logger
	// Echo receives engine stdout lines as they are read; nil discards.
	Echo io.Writer
}

// NewRunner returns a Runner over the real executor.
func NewRunner(binDir string, logger *zap.Logger, echo io.Writer) *Runner {
	return &Runner{Binaries: Binaries{Dir: binDir}, Executor: ExecExecutor{}, Logger: logger, Echo: echo}
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) executor() Executor {
	if r.Executor == nil {
		return ExecExecutor{}
	}
	return r.Executor
}

// run starts binary in dir and blocks until it exits or is killed on the
// first error keyword. It returns the stdout read.
func (r *Runner) run(ctx context.Context, name, binary, dir string, args ...string) (string, error) {
	log := r.log().With(zap.String("engine", name), zap.String("dir", dir))
	log.Debug("starting engine", zap.String("binary", binary), zap.Strings("args", args))

	proc, err := r.executor().Start(ctx, dir, binary, args...)
	if err != nil {
		return "", &RunError{Engine: name, Reason: "could not start", Err: err}
	}

	var stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stderr, proc.Stderr())
		return err
	})

	cls, readErr := Classify(proc.Stdout(), r.Echo)
	if cls.Failed {
		log.Warn("engine reported an error", zap.String("line", cls.Line))
		_ = proc.Kill()
	}
	stderrErr := g.Wait()
	waitErr := proc.Wait()

	switch {
	case cls.Failed:
		return cls.Output, &RunError{Engine: name, Reason: strings.TrimSpace(cls.Line), Output: cls.Output + stderr.String()}
	case stderr.Len() > 0:
		return cls.Output, &RunError{Engine: name, Reason: "wrote to stderr", Output: cls.Output + stderr.String()}
	case ctx.Err() != nil:
		return cls.Output, &RunError{Engine: name, Reason: "cancelled", Output: cls.Output, Err: ctx.Err()}
	case readErr != nil || stderrErr != nil:
		return cls.Output, &RunError{Engine: name, Reason: "reading output", Output: cls.Output, Err: errors.Join(readErr, stderrErr)}
	case waitErr != nil:
		return cls.Output, &RunError{Engine: name, Reason: "exited abnormally", Output: cls.Output, Err: waitErr}
	}
	log.Debug("engine finished", zap.Int("stdout_bytes", len(cls.Output)))
	return cls.Output, nil
}

// PurgeResult describes a successful purge run.
type PurgeResult struct {
	Dir           string
	SpectraPurged int
	Files         []string
	Output        string
}

// Purge writes the purge input for gf, runs the purge engine, and moves
// its outputs into outDir.
func (r *Runner) Purge(ctx context.Context, gf *model.GudrunFile, opts PurgeOptions, outDir string) (*PurgeResult, error) {
	bin, err := r.Binaries.Resolve(PurgeBinary)
	if err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "gudrunctl-purge-*")
	if err != nil {
		return nil, fmt.Errorf("creating purge working directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	pf := NewPurgeFile(gf, opts)
	if err := os.WriteFile(filepath.Join(tmp, PurgeInputFile), []byte(pf.String()), 0o644); err != nil {
		return nil, fmt.Errorf("writing purge input: %w", err)
	}

	out, err := r.run(ctx, PurgeBinary, bin, tmp, PurgeInputFile)
	if err != nil {
		return nil, err
	}

	files, err := r.moveAll(tmp, outDir, nil, func(name string) string { return filepath.Join(outDir, name) })
	if err != nil {
		return nil, err
	}
	res := &PurgeResult{Dir: outDir, SpectraPurged: spectraPurged(out), Files: files, Output: out}
	r.log().Debug("purge finished", zap.Int("spectra_purged", res.SpectraPurged), zap.Int("files", len(files)))
	return res, nil
}

// spectraPurged reads the first integer on the first line mentioning
// "spectra in", or returns -1.
func spectraPurged(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "spectra in") {
			continue
		}
		for _, tok := range tokens.Fields(line) {
			if n, err := tokens.Int(tok); err == nil {
				return n
			}
		}
	}
	return -1
}

// OutputDir is the permanent home of one reduction run's outputs.
type OutputDir struct {
	Path string
	// Samples maps each running sample's name to its output directory.
	Samples map[string]string
}

// SampleFile returns the path of s's output with the given extension.
func (o *OutputDir) SampleFile(s *model.Sample, ext string) string {
	return filepath.Join(o.Path, s.Name, s.DataFiles.Stem()+ext)
}

// GudFile returns the path of s's result report.
func (o *OutputDir) GudFile(s *model.Sample) string {
	return o.SampleFile(s, gudfile.Extension)
}

// ReadGudFile parses s's result report.
func (o *OutputDir) ReadGudFile(s *model.Sample) (*gudfile.GudFile, error) {
	return gudfile.Parse(o.GudFile(s))
}

// Reduce runs the reduction engine over gf. Files in purgeDir are copied
// into the working directory first and are not moved back out. Outputs
// named after a running sample's first data file go to
// <outDir>/<sample>/, the input file stays at outDir, and everything else
// goes to <outDir>/Additional Outputs/.
func (r *Runner) Reduce(ctx context.Context, gf *model.GudrunFile, purgeDir, outDir string) (*OutputDir, error) {
	bin, err := r.Binaries.Resolve(ReduceBinary)
	if err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "gudrunctl-gudrun-*")
	if err != nil {
		return nil, fmt.Errorf("creating reduction working directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	exclude := map[string]bool{}
	if purgeDir != "" {
		entries, err := os.ReadDir(purgeDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading purge outputs: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := fsutil.CopyFile(filepath.Join(purgeDir, e.Name()), filepath.Join(tmp, e.Name())); err != nil {
				return nil, fmt.Errorf("copying purge output %s: %w", e.Name(), err)
			}
			exclude[e.Name()] = true
		}
	}

	input := gf.Clone()
	input.Instrument.GudrunInputFileDir = tmp + string(filepath.Separator)
	data, err := gudrunfile.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("rendering reduction input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, ReduceInputFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing reduction input: %w", err)
	}

	if _, err := r.run(ctx, ReduceBinary, bin, tmp, ReduceInputFile); err != nil {
		return nil, err
	}

	od := &OutputDir{Path: outDir, Samples: map[string]string{}}
	running := gf.RunningSamples()
	for _, s := range running {
		od.Samples[s.Name] = filepath.Join(outDir, s.Name)
	}
	dest := func(name string) string {
		if name == ReduceInputFile {
			return filepath.Join(outDir, name)
		}
		if s := ownerOf(name, running); s != nil {
			return filepath.Join(outDir, s.Name, name)
		}
		return filepath.Join(outDir, AdditionalOutputs, name)
	}
	if _, err := r.moveAll(tmp, outDir, exclude, dest); err != nil {
		return nil, err
	}
	return od, nil
}

// ownerOf returns the running sample whose data-file stem is the longest
// prefix of the output file name, or nil.
func ownerOf(name string, running []*model.Sample) *model.Sample {
	var owner *model.Sample
	best := 0
	for _, s := range running {
		stem := s.DataFiles.Stem()
		if len(stem) > best && strings.HasPrefix(name, stem) {
			owner, best = s, len(stem)
		}
	}
	return owner
}

// moveAll moves every entry of src not in exclude to dest(name).
func (r *Runner) moveAll(src, outDir string, exclude map[string]bool, dest func(string) string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("listing engine outputs: %w", err)
	}
	var moved []string
	for _, e := range entries {
		if exclude[e.Name()] {
			continue
		}
		target := dest(e.Name())
		if err := fsutil.Move(filepath.Join(src, e.Name()), target); err != nil {
			return nil, fmt.Errorf("moving %s: %w", e.Name(), err)
		}
		moved = append(moved, e.Name())
	}
	r.log().Debug("moved engine outputs", zap.String("to", outDir), zap.Int("count", len(moved)))
	return moved, nil
}
