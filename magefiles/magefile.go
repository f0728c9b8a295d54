// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	mainPackage = "./cmd/gudrunctl"
	binaryDir   = "bin"
	binaryName  = "gudrunctl"
	e2eDir      = "tests/e2e"
)

// Default target to run when none is specified.
var Default = Build

// Build compiles the gudrunctl binary into bin/.
func Build() error {
	outPath := filepath.Join(binaryDir, binaryName)
	fmt.Printf("build: go build -o %s %s\n", outPath, mainPackage)
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return sh.RunV(mg.GoCmd(), "build", "-o", outPath, mainPackage)
}

// Lint runs golangci-lint on the module.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

type Test mg.Namespace

// Unit runs go test on all packages.
func (Test) Unit() error {
	return sh.RunV(mg.GoCmd(), "test", "./...")
}

// E2E runs the end-to-end tests against the installed engines. The
// GUDRUN_BIN_DIR environment variable must point at them.
func (Test) E2E() error {
	if _, err := os.Stat(e2eDir); os.IsNotExist(err) {
		fmt.Printf("No E2E test directory found (%s/)\n", e2eDir)
		return nil
	}
	return sh.RunV(mg.GoCmd(), "test", "-v", "-count=1", "-tags", "e2e", "-timeout", "1800s", "./"+e2eDir+"/...")
}

// All runs unit and E2E tests.
func (Test) All() {
	mg.SerialDeps(Test.Unit, Test.E2E)
}

// Install runs go install for the main package.
func Install() error {
	return sh.RunV(mg.GoCmd(), "install", mainPackage)
}

// Clean removes the build artifact directory.
func Clean() error {
	fmt.Printf("clean: removing %s\n", binaryDir)
	return sh.Rm(binaryDir)
}
