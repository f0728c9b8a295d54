// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"fmt"
	"strings"
)

// Stages of an orchestrated operation.
const (
	StageValidate = "validate"
	StagePurge    = "purge"
	StageMutate   = "mutate"
	StageReduce   = "reduce"
	StageResults  = "results"
	StageSearch   = "search"
	StageOutput   = "output"
)

// Error is the failure of an orchestrated operation. Iteration and Batch
// are -1 when they do not apply.
type Error struct {
	Op        string
	Stage     string
	Iteration int
	Batch     int
	Sample    string
	// Default marks a failure in the unmodified run that precedes the
	// iterations.
	Default bool
	Err     error
}

func newError(op, stage string, err error) *Error {
	return &Error{Op: op, Stage: stage, Iteration: -1, Batch: -1, Err: err}
}

func (e *Error) Error() string {
	parts := []string{e.Op}
	if e.Batch >= 0 {
		parts = append(parts, fmt.Sprintf("batch %d", e.Batch+1))
	}
	switch {
	case e.Default:
		parts = append(parts, "default run")
	case e.Iteration >= 0:
		parts = append(parts, fmt.Sprintf("iteration %d", e.Iteration+1))
	}
	if e.Sample != "" {
		parts = append(parts, "sample "+e.Sample)
	}
	parts = append(parts, e.Stage)
	return fmt.Sprintf("%s: %v", strings.Join(parts, ": "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
