// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tokens converts between the whitespace-delimited tokens of the
// legacy input and result formats and typed Go values.
package tokens

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pad separates a value from its trailing annotation on every data line.
const Pad = "          "

// Sep separates the values of a tuple on a data line.
const Sep = "  "

// Fields splits a line on whitespace.
func Fields(line string) []string {
	return strings.Fields(line)
}

// First returns the first whitespace-delimited token of line, or "" when
// the line is blank.
func First(line string) string {
	f := strings.Fields(line)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Value returns the value part of a data line: the text before the
// annotation pad, trimmed. Lines without a pad yield their first token.
func Value(line string) string {
	if i := strings.Index(line, Pad); i >= 0 {
		return strings.TrimSpace(line[:i])
	}
	return First(line)
}

// Last returns the last whitespace-delimited token of line.
func Last(line string) (string, error) {
	return FromEnd(line, 1)
}

// FromEnd returns the n-th token counted from the end of line; n=1 is the
// last token.
func FromEnd(line string, n int) (string, error) {
	f := strings.Fields(line)
	if n < 1 || n > len(f) {
		return "", fmt.Errorf("token %d from end: line has %d token(s): %q", n, len(f), strings.TrimSpace(line))
	}
	return f[len(f)-n], nil
}

// LeadingFloats parses tokens from the start of line until the first
// token that is not a number.
func LeadingFloats(line string) []float64 {
	var out []float64
	for _, tok := range strings.Fields(line) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}

// LeadingInts parses tokens from the start of line until the first token
// that is not an integer.
func LeadingInts(line string) []int {
	var out []int
	for _, tok := range strings.Fields(line) {
		v, err := strconv.Atoi(tok)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}

// Floats returns the first n leading floats of line.
func Floats(line string, n int) ([]float64, error) {
	vals := LeadingFloats(line)
	if len(vals) < n {
		return nil, fmt.Errorf("expected %d number(s), found %d in %q", n, len(vals), strings.TrimSpace(line))
	}
	return vals[:n], nil
}

// Ints returns the first n leading integers of line.
func Ints(line string, n int) ([]int, error) {
	vals := LeadingInts(line)
	if len(vals) < n {
		return nil, fmt.Errorf("expected %d integer(s), found %d in %q", n, len(vals), strings.TrimSpace(line))
	}
	return vals[:n], nil
}

// Float parses the first token of line.
func Float(line string) (float64, error) {
	v, err := Floats(line, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Int parses the first token of line.
func Int(line string) (int, error) {
	v, err := Ints(line, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Bool parses the first token of line as a 0/1 flag. Any non-zero
// integer is true.
func Bool(line string) (bool, error) {
	v, err := Int(line)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// FormatBool renders b as 1 or 0.
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FormatFloat renders f the way the legacy tooling writes floats: the
// shortest representation that round-trips, always with a decimal point,
// switching to exponent form only for very small or very large values.
func FormatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Join renders values separated by Sep. Floats go through FormatFloat,
// bools through FormatBool, everything else through fmt.
func Join(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case float64:
			parts[i] = FormatFloat(x)
		case bool:
			parts[i] = FormatBool(x)
		case string:
			parts[i] = x
		default:
			parts[i] = fmt.Sprint(x)
		}
	}
	return strings.Join(parts, Sep)
}

// JoinFloats renders a float slice separated by Sep.
func JoinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = FormatFloat(v)
	}
	return strings.Join(parts, Sep)
}

// JoinInts renders an int slice separated by Sep.
func JoinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, Sep)
}

// Line renders a data line: value, Pad, annotation.
func Line(value, annotation string) string {
	return value + Pad + annotation
}

// ContainsFold reports whether substr appears in s ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
