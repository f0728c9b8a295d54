// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package gudrunfile

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by ParseError.
var (
	ErrMissingSection = errors.New("missing mandatory section")
	ErrMissingField   = errors.New("keyphrase not found")
	ErrFileCount      = errors.New("data file count mismatch")
	ErrStructure      = errors.New("malformed section structure")
	ErrBeamProfile    = errors.New("too many beam profile values")
)

// ParseError reports a failure to parse a legacy input file. Section and
// Field name the place in the file the parser was working on; Line is
// 1-based and zero when not known.
type ParseError struct {
	Path    string
	Section string
	Field   string
	Line    int
	Err     error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	switch {
	case e.Section != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s: %v", loc, e.Section, e.Field, e.Err)
	case e.Section != "":
		return fmt.Sprintf("%s: %s: %v", loc, e.Section, e.Err)
	default:
		return fmt.Sprintf("%s: %v", loc, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// lineError pins a block-level failure to a line index within a section body.
type lineError struct {
	index int
	err   error
}

func (e *lineError) Error() string { return e.err.Error() }
func (e *lineError) Unwrap() error { return e.err }

func atLine(i int, err error) error { return &lineError{index: i, err: err} }
