// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Engine binary names, without platform suffix.
const (
	PurgeBinary  = "purge_det"
	ReduceBinary = "gudrun_dcs"
)

// BinaryNotFoundError reports an engine binary missing from the binaries
// directory. It is returned before anything is spawned.
type BinaryNotFoundError struct {
	Name string
	Path string
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("%s binary not found at %s", e.Name, e.Path)
}

// Binaries locates the engine executables.
type Binaries struct {
	Dir string
}

// DefaultBinDir returns GUDRUN_BIN_DIR when set, else the bin directory
// next to the running executable.
func DefaultBinDir() string {
	if d := os.Getenv("GUDRUN_BIN_DIR"); d != "" {
		return d
	}
	exe, err := os.Executable()
	if err != nil {
		return "bin"
	}
	return filepath.Join(filepath.Dir(exe), "bin")
}

// Resolve returns the path of the named binary, appending .exe on
// Windows.
func (b Binaries) Resolve(name string) (string, error) {
	file := name
	if runtime.GOOS == "windows" {
		file += ".exe"
	}
	path := filepath.Join(b.Dir, file)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &BinaryNotFoundError{Name: name, Path: path}
	}
	return path, nil
}

// Process is a started engine subprocess.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits. Call it only after Stdout and
	// Stderr reads have finished or been abandoned with Kill.
	Wait() error
	Kill() error
}

// Executor starts engine subprocesses in a working directory.
type Executor interface {
	Start(ctx context.Context, dir, binary string, args ...string) (Process, error)
}

// ExecExecutor runs binaries with os/exec. Cancelling ctx kills the
// process.
type ExecExecutor struct{}

// Start implements Executor.
func (ExecExecutor) Start(ctx context.Context, dir, binary string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", filepath.Base(binary), err)
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
