// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/mesh-intelligence/gudrunctl/pkg/gudrunfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

type fakeProcess struct {
	stdout io.Reader
	stderr io.Reader
	killed bool
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return p.stderr }
func (p *fakeProcess) Wait() error {
	if p.killed {
		return errors.New("signal: killed")
	}
	return nil
}
func (p *fakeProcess) Kill() error { p.killed = true; return nil }

// fakeExecutor writes files into the working directory and replays
// canned output.
type fakeExecutor struct {
	stdout string
	stderr string
	files  map[string]string

	calls  int
	inputs map[string]string
	last   *fakeProcess
}

func (f *fakeExecutor) Start(_ context.Context, dir, _ string, args ...string) (Process, error) {
	f.calls++
	f.inputs = map[string]string{}
	for _, a := range args {
		if data, err := os.ReadFile(filepath.Join(dir, a)); err == nil {
			f.inputs[a] = string(data)
		}
	}
	for name, content := range f.files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	f.last = &fakeProcess{stdout: strings.NewReader(f.stdout), stderr: strings.NewReader(f.stderr)}
	return f.last, nil
}

func binDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{PurgeBinary, ReduceBinary} {
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func fixture(t *testing.T) *model.GudrunFile {
	t.Helper()
	gf, err := gudrunfile.ParseFile("../gudrunfile/testdata/water.txt")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return gf
}

func TestClassify_ShortCircuit(t *testing.T) {
	out := "Reading spectra\nDetector 12 does not exist\n 120 spectra in purge_det.dat\n"
	var echo bytes.Buffer
	c, err := Classify(strings.NewReader(out), &echo)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !c.Failed || c.Line != "Detector 12 does not exist" {
		t.Errorf("Classify = %+v", c)
	}
	if strings.Contains(c.Output, "spectra in") || strings.Contains(echo.String(), "spectra in") {
		t.Errorf("lines after the failure were consumed: %q", c.Output)
	}
}

func TestClassify_Keywords(t *testing.T) {
	cases := map[string]bool{
		"an error occurred":        true,
		"Error reading file":       true,
		"Problems with group file": true,
		"file does not exist":      true,
		"ERROR IN CAPITALS":        false,
		"all finished":             false,
	}
	for line, want := range cases {
		c, err := Classify(strings.NewReader(line+"\n"), nil)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if c.Failed != want {
			t.Errorf("Classify(%q).Failed = %v, want %v", line, c.Failed, want)
		}
	}
}

func TestPurge_FailureDoesNotReportCount(t *testing.T) {
	exec := &fakeExecutor{stdout: "Reading spectra\nDetector 12 does not exist\n 120 spectra in purge_det.dat\n"}
	r := &Runner{Binaries: Binaries{Dir: binDir(t)}, Executor: exec}
	outDir := filepath.Join(t.TempDir(), "Purge")

	res, err := r.Purge(context.Background(), fixture(t), DefaultPurgeOptions(), outDir)
	if err == nil {
		t.Fatalf("Purge succeeded with %+v, want failure", res)
	}
	if res != nil {
		t.Errorf("Purge returned a result on failure: %+v", res)
	}
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T, want *RunError", err)
	}
	if re.Reason != "Detector 12 does not exist" {
		t.Errorf("Reason = %q", re.Reason)
	}
	if strings.Contains(re.Output, "spectra in") {
		t.Errorf("error output includes lines after the failure: %q", re.Output)
	}
	if !exec.last.killed {
		t.Error("process was not killed on the error line")
	}
	if _, err := os.Stat(outDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output directory created on failure: %v", err)
	}
}

func TestPurge_Success(t *testing.T) {
	exec := &fakeExecutor{
		stdout: "Purging\n 45 spectra in purge_det.dat rejected\n",
		files:  map[string]string{"spec.bad": "1 2 3", "purge_det.log": "ok"},
	}
	r := &Runner{Binaries: Binaries{Dir: binDir(t)}, Executor: exec}
	outDir := filepath.Join(t.TempDir(), "Purge")

	res, err := r.Purge(context.Background(), fixture(t), DefaultPurgeOptions(), outDir)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if res.SpectraPurged != 45 {
		t.Errorf("SpectraPurged = %d, want 45", res.SpectraPurged)
	}
	if _, err := os.Stat(filepath.Join(outDir, "spec.bad")); err != nil {
		t.Errorf("spec.bad not moved: %v", err)
	}
	if !strings.Contains(exec.inputs[PurgeInputFile], "PURGE PARAMETERS") {
		t.Errorf("purge input not written before start:\n%s", exec.inputs[PurgeInputFile])
	}
}

func TestRun_StderrIsFailure(t *testing.T) {
	exec := &fakeExecutor{stdout: "all fine\n", stderr: "segfault at 0x0\n"}
	r := &Runner{Binaries: Binaries{Dir: binDir(t)}, Executor: exec}
	_, err := r.Purge(context.Background(), fixture(t), DefaultPurgeOptions(), t.TempDir())
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RunError", err)
	}
	if !strings.Contains(re.Output, "segfault") {
		t.Errorf("Output = %q, want stderr included", re.Output)
	}
}

func TestResolve_MissingBinary(t *testing.T) {
	exec := &fakeExecutor{stdout: "ok\n"}
	r := &Runner{Binaries: Binaries{Dir: t.TempDir()}, Executor: exec}
	_, err := r.Reduce(context.Background(), fixture(t), "", t.TempDir())
	var nf *BinaryNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *BinaryNotFoundError", err)
	}
	if nf.Name != ReduceBinary {
		t.Errorf("Name = %q", nf.Name)
	}
	if exec.calls != 0 {
		t.Errorf("executor called %d times", exec.calls)
	}
}

func TestReduce_OrganisesOutputs(t *testing.T) {
	gf := fixture(t)
	sample := &gf.SampleBackgrounds[0].Samples[0]
	stem := sample.DataFiles.Stem()

	purgeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(purgeDir, "spec.bad"), []byte("bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	exec := &fakeExecutor{
		stdout: "Gudrun running\nfinished\n",
		files: map[string]string{
			stem + ".gud":   "report",
			stem + ".dcs01": "dcs",
			"gudrun.log":    "log",
		},
	}
	r := &Runner{Binaries: Binaries{Dir: binDir(t)}, Executor: exec}
	outDir := filepath.Join(t.TempDir(), "Gudrun", "Default")

	od, err := r.Reduce(context.Background(), gf, purgeDir, outDir)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if got, want := od.GudFile(sample), filepath.Join(outDir, sample.Name, stem+".gud"); got != want {
		t.Errorf("GudFile = %q, want %q", got, want)
	}
	for _, p := range []string{
		od.GudFile(sample),
		filepath.Join(outDir, sample.Name, stem+".dcs01"),
		filepath.Join(outDir, AdditionalOutputs, "gudrun.log"),
		filepath.Join(outDir, ReduceInputFile),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, AdditionalOutputs, "spec.bad")); err == nil {
		t.Error("purge output was moved as a reduction output")
	}
	if _, err := os.Stat(filepath.Join(purgeDir, "spec.bad")); err != nil {
		t.Errorf("purge output removed from purge dir: %v", err)
	}
	if _, err := gudrunfile.Parse([]byte(exec.inputs[ReduceInputFile]), ReduceInputFile); err != nil {
		t.Errorf("reduction input does not parse: %v", err)
	}
	if gf.Instrument.GudrunInputFileDir != "/home/test/gudpy-water/" {
		t.Errorf("Reduce mutated its input configuration")
	}
}

func TestReduce_LongestStemOwnsOutput(t *testing.T) {
	gf := fixture(t)
	first := &gf.SampleBackgrounds[0].Samples[0]
	stem := first.DataFiles.Stem()
	second := first.Clone()
	second.Name = "H2O repeat"
	second.DataFiles.Files = []string{stem + "_2.raw"}
	gf.SampleBackgrounds[0].Samples = append(gf.SampleBackgrounds[0].Samples, second)

	exec := &fakeExecutor{
		stdout: "Gudrun running\nfinished\n",
		files: map[string]string{
			stem + ".gud":   "report",
			stem + "_2.gud": "report",
		},
	}
	r := &Runner{Binaries: Binaries{Dir: binDir(t)}, Executor: exec}
	outDir := filepath.Join(t.TempDir(), "Gudrun", "Default")
	if _, err := r.Reduce(context.Background(), gf, t.TempDir(), outDir); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	for _, p := range []string{
		filepath.Join(outDir, first.Name, stem+".gud"),
		filepath.Join(outDir, second.Name, stem+"_2.gud"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, first.Name, stem+"_2.gud")); err == nil {
		t.Errorf("%s_2.gud routed to %s", stem, first.Name)
	}
}

func TestNewPurgeFile_ExcludeSampleAndCan(t *testing.T) {
	gf := fixture(t)
	all := NewPurgeFile(gf, DefaultPurgeOptions()).String()
	if !strings.Contains(all, "SAMPLE H2O, Can N9") || !strings.Contains(all, "CONTAINER N9") {
		t.Errorf("purge input missing sample or container:\n%s", all)
	}
	opts := DefaultPurgeOptions()
	opts.ExcludeSampleAndCan = true
	excl := NewPurgeFile(gf, opts).String()
	if strings.Contains(excl, "SAMPLE H2O") || strings.Contains(excl, "CONTAINER N9") {
		t.Errorf("excluded purge input still lists sample files:\n%s", excl)
	}
	if !strings.Contains(excl, "SAMPLE BACKGROUND") {
		t.Error("sample background dropped from purge input")
	}
}
