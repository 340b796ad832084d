package verify

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantuner/internal/extract"
	"scantuner/internal/rewrite"
)

const gapScanner = `import pandas as pd

def scan_gappers(df):
    mask = (df['gap'] >= 0.5) & (df['vol'] >= 1000000)
    mask &= df['float'] < 50_000_000
    return df[mask]
`

func TestVerifyRoundTrip(t *testing.T) {
	sig, err := extract.Extract(gapScanner)
	require.NoError(t, err)
	require.Equal(t, 3, sig.Len())

	res := rewrite.Transform(gapScanner, sig, rewrite.Options{})
	require.Empty(t, res.Warnings)

	report := Verify(gapScanner, res.TransformedSource)
	assert.True(t, report.Verified, "differences: %v", report.Differences)
	assert.Empty(t, report.Differences)
	assert.Equal(t, report.Original.ContentHash(), report.Transformed.ContentHash())
}

func TestVerifyRoundTripWithCustomMapping(t *testing.T) {
	sig, err := extract.Extract(gapScanner)
	require.NoError(t, err)
	res := rewrite.Transform(gapScanner, sig, rewrite.Options{Mapping: "overrides"})
	report := Verify(gapScanner, res.TransformedSource)
	assert.True(t, report.Verified, "differences: %v", report.Differences)
}

func TestVerifyDetectsTamperedDefault(t *testing.T) {
	original := "mask = df['gap'] >= 0.5\n"
	tampered := "mask = df['gap'] >= params.get('gap_min', 0.75)\n"

	report := Verify(original, tampered)
	assert.False(t, report.Verified)
	want := []string{"gap_min: value changed 0.5 -> 0.75"}
	if diff := cmp.Diff(want, report.Differences); diff != "" {
		t.Errorf("differences mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyDetectsDroppedBinding(t *testing.T) {
	original := "mask = (df['gap'] >= 0.5) & (df['vol'] >= 1000000)\n"
	truncated := "mask = df['gap'] >= params.get('gap_min', 0.5)\n"

	report := Verify(original, truncated)
	assert.False(t, report.Verified)
	require.Len(t, report.Differences, 1)
	assert.Equal(t, "vol_min: only in original (1000000)", report.Differences[0])
}

func TestVerifyDetectsIntroducedBinding(t *testing.T) {
	original := "mask = df['gap'] >= 0.5\n"
	grown := "mask = (df['gap'] >= params.get('gap_min', 0.5)) & (df['rsi'] < 70)\n"

	report := Verify(original, grown)
	assert.False(t, report.Verified)
	require.Len(t, report.Differences, 1)
	assert.Equal(t, "rsi_max: only in transformed (70)", report.Differences[0])
}

func TestVerifyDetectsReordering(t *testing.T) {
	original := "a = df['gap'] >= 0.5\nb = df['vol'] >= 1000000\n"
	reordered := "b = df['vol'] >= 1000000\na = df['gap'] >= 0.5\n"

	report := Verify(original, reordered)
	assert.False(t, report.Verified)
	require.Len(t, report.Differences, 1)
	assert.Contains(t, report.Differences[0], "reordered")
}

func TestVerifyTransformedParseFailure(t *testing.T) {
	original := "mask = df['gap'] >= 0.5\n"
	broken := "mask = ((df['gap'] >= 0.5\n"

	report := Verify(original, broken)
	assert.False(t, report.Verified)
	require.Len(t, report.Differences, 1)
	assert.True(t, strings.Contains(report.Differences[0], "transformed source failed to parse"))
	assert.Equal(t, 1, report.Original.Len(), "original side still extracted")
}

func TestVerifyOriginalParseFailure(t *testing.T) {
	report := Verify("mask = ((broken\n", "mask = df['gap'] >= 0.5\n")
	assert.False(t, report.Verified)
	require.NotEmpty(t, report.Differences)
	assert.Contains(t, report.Differences[0], "original source failed to parse")
}

func TestVerifyIdenticalSources(t *testing.T) {
	report := Verify(gapScanner, gapScanner)
	assert.True(t, report.Verified)
}
