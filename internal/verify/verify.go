// Package verify closes the transform's safety loop: it re-runs the
// structural extractor over both the original and the transformed source
// and checks that the two derive the identical parameter signature. A
// mismatch is evidence, never a crash — the report itemizes every
// divergence and the caller decides what to do with it.
package verify

import (
	"fmt"

	"scantuner/internal/extract"
	"scantuner/internal/scanner"
)

// Verify compares the structural signatures of the two sources. Parse
// failures on either side are folded into the report's differences.
func Verify(original, transformed string) scanner.VerificationReport {
	var report scanner.VerificationReport

	orig, err := extract.Extract(original)
	if err != nil {
		report.Differences = append(report.Differences, fmt.Sprintf("original source failed to parse: %v", err))
	} else {
		report.Original = *orig
	}

	xf, err := extract.Extract(transformed)
	if err != nil {
		report.Differences = append(report.Differences, fmt.Sprintf("transformed source failed to parse: %v", err))
	} else {
		report.Transformed = *xf
	}

	if orig == nil || xf == nil {
		return report
	}

	report.Verified = orig.Equal(xf)
	if report.Verified {
		return report
	}

	report.Differences = append(report.Differences, diffBindings(orig, xf)...)
	return report
}

// diffBindings itemizes missing names and changed values, walking the
// original's order first so output is deterministic. Signatures that hold
// the same pairs in a different order hash apart; that case gets its own
// entry so the mismatch is never reported empty.
func diffBindings(orig, xf *scanner.Signature) []string {
	var out []string
	for _, b := range orig.Bindings {
		other, ok := xf.Lookup(b.Name)
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s: only in original (%s)", b.Name, b.Value))
		case !b.Value.Equal(other.Value):
			out = append(out, fmt.Sprintf("%s: value changed %s -> %s", b.Name, b.Value, other.Value))
		}
	}
	for _, b := range xf.Bindings {
		if _, ok := orig.Lookup(b.Name); !ok {
			out = append(out, fmt.Sprintf("%s: only in transformed (%s)", b.Name, b.Value))
		}
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("bindings reordered: original %v, transformed %v", names(orig), names(xf)))
	}
	return out
}

func names(sig *scanner.Signature) []string {
	out := make([]string, 0, sig.Len())
	for _, b := range sig.Bindings {
		out = append(out, b.Name)
	}
	return out
}
