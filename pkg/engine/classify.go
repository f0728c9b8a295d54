// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// errorKeywords mark an engine stdout line as a failure.
var errorKeywords = []string{"does not exist", "error", "Error", "Problems"}

// Classification is the verdict on one engine run's stdout.
type Classification struct {
	Failed bool
	// Line is the first line that matched an error keyword.
	Line string
	// Output is every line read, up to and including Line.
	Output string
}

// Classify reads r line by line, copying each line to echo when echo is
// not nil. It stops at the first line containing an error keyword and
// leaves the rest of r unread.
func Classify(r io.Reader, echo io.Writer) (Classification, error) {
	var c Classification
	var out strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		out.WriteString(line)
		out.WriteByte('\n')
		if echo != nil {
			fmt.Fprintln(echo, line)
		}
		if hasErrorKeyword(line) {
			c.Failed = true
			c.Line = line
			break
		}
	}
	c.Output = out.String()
	if c.Failed {
		return c, nil
	}
	return c, sc.Err()
}

func hasErrorKeyword(line string) bool {
	for _, k := range errorKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}
