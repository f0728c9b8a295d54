// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package gudfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func report(avg, expected float64, message, tweak string) string {
	return fmt.Sprintf(` NIMROD00016608_H2O_in_N9.gud

 H2O in N9 can

 test user

 Wed Jan 14 10:00:00 2026

 Number density of this sample (atoms/A**3) =    0.1
 Corresponding density in g/cm**3 =    1.0
 Average scattering length of the sample (10**-12cm) =   -0.056
 Average scattering length squared of the sample (barns) =    0.0314
 Average square of the scattering length of the sample (barns) =    27.3
 Ratio of (coherent) single to interference =    0.00115
 Expected level of (self) DCS [b/sr/atom] =    %v
 Group  Qmin  Qmax  Level  Gradient
    1   0.50   40.0   9.1   0.3
    2   0.50   40.0   8.9   0.2

 Average level of merged dcs is    %v b/sr/atom;
 Gradient of merged dcs:  0.63%% of average level

 %s
 Suggested tweak factor:   %s
`, expected, avg, message, tweak)
}

func TestParse_Success(t *testing.T) {
	gf, err := ParseBytes([]byte(report(9.0, 10.0, "The ratio of merged to expected DCS is 95.0 percent", "1.1")), "h2o.gud")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if gf.Name != "NIMROD00016608_H2O_in_N9.gud" || gf.Author != "test user" {
		t.Errorf("header name=%q author=%q", gf.Name, gf.Author)
	}
	if gf.ExpectedDCS != 10 || gf.AverageLevelMergedDCS != 9 {
		t.Errorf("expected=%v avg=%v", gf.ExpectedDCS, gf.AverageLevelMergedDCS)
	}
	if gf.AverageScatteringLength != -0.056 || gf.CoherentRatio != 0.00115 {
		t.Errorf("scattering stats = %v %v", gf.AverageScatteringLength, gf.CoherentRatio)
	}
	if len(gf.Groups) != 3 {
		t.Errorf("groups table rows = %d, want 3", len(gf.Groups))
	}
	if gf.GradientMergedDCS != 0.63 {
		t.Errorf("gradient = %v, want 0.63", gf.GradientMergedDCS)
	}
	if gf.Warning() || gf.Result == "" {
		t.Errorf("Err=%q Result=%q, want only Result", gf.Err, gf.Result)
	}
	if gf.Output != "-5.0%" {
		t.Errorf("Output = %q, want -5.0%%", gf.Output)
	}
	tf, err := gf.TweakFactor()
	if err != nil || tf != 1.1 {
		t.Errorf("TweakFactor = %v, %v", tf, err)
	}
	c, err := gf.Coefficient()
	if err != nil || c != 0.9 {
		t.Errorf("Coefficient = %v, %v", c, err)
	}
}

func TestParse_WarningBlock(t *testing.T) {
	msg := "WARNING! This final DCS is 12.5% BELOW the expected level\n Check the sample density and container composition"
	gf, err := ParseBytes([]byte(report(8.75, 10, msg, "1.14")), "w.gud")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if !gf.Warning() || gf.Result != "" {
		t.Fatalf("Err=%q Result=%q, want only Err", gf.Err, gf.Result)
	}
	if !strings.Contains(gf.Err, "Check the sample density") {
		t.Errorf("warning block truncated: %q", gf.Err)
	}
	if strings.Contains(gf.Err, "Suggested tweak factor") {
		t.Errorf("warning block includes tweak factor line: %q", gf.Err)
	}
	if gf.Output != "-12.5%" {
		t.Errorf("Output = %q, want -12.5%%", gf.Output)
	}
	if gf.SuggestedTweakFactor != "1.14" {
		t.Errorf("SuggestedTweakFactor = %q", gf.SuggestedTweakFactor)
	}
}

func TestOutputSignal(t *testing.T) {
	cases := map[string]string{
		"WARNING! 7% ABOVE expected":       "+7%",
		"WARNING! 3.25% BELOW expected":    "-3.25%",
		"ratio is 95.0 percent":            "-5.0%",
		"ratio is 104.5 percent":           "+4.5%",
		"ratio is 100 percent of expected": "0%",
	}
	for text, want := range cases {
		got, err := outputSignal(text)
		if err != nil {
			t.Errorf("outputSignal(%q): %v", text, err)
			continue
		}
		if got != want {
			t.Errorf("outputSignal(%q) = %q, want %q", text, got, want)
		}
	}
	if _, err := outputSignal("no numbers here"); err == nil {
		t.Error("expected error for text without a number")
	}
}

func TestParse_Truncated(t *testing.T) {
	full := report(9, 10, "ratio is 95.0 percent", "1.1")
	cut := full[:strings.Index(full, "Average level of merged")]
	_, err := ParseBytes([]byte(cut), "cut.gud")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Path != "cut.gud" {
		t.Errorf("ParseError.Path = %q", pe.Path)
	}
}

func TestParse_NonNumeric(t *testing.T) {
	bad := strings.Replace(report(9, 10, "ratio is 95.0 percent", "1.1"), "=    0.1\n", "=    n/a\n", 1)
	if _, err := ParseBytes([]byte(bad), "bad.gud"); err == nil {
		t.Error("expected error for non-numeric density")
	}
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.gud")
	if err := os.WriteFile(path, []byte(report(10, 10, "ratio is 100.0 percent", "1.0")), 0o644); err != nil {
		t.Fatal(err)
	}
	gf, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gf.Output != "0%" || gf.Path != path {
		t.Errorf("Output=%q Path=%q", gf.Output, gf.Path)
	}
	if _, err := Parse(filepath.Join(t.TempDir(), "missing.gud")); err == nil {
		t.Error("expected error for missing file")
	}
}
