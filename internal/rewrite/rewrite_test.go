package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantuner/internal/diff"
	"scantuner/internal/extract"
	"scantuner/internal/scanner"
)

func extractSig(t *testing.T, source string) *scanner.Signature {
	t.Helper()
	sig, err := extract.Extract(source)
	require.NoError(t, err)
	return sig
}

func TestTransformBasic(t *testing.T) {
	source := `import pandas as pd

df = pd.read_csv('candidates.csv')
hits = df[(df['gap'] >= 0.5) & (df['vol'] >= 1000000)]
`
	res := Transform(source, extractSig(t, source), Options{})
	require.Empty(t, res.Warnings)

	want := `import pandas as pd

df = pd.read_csv('candidates.csv')
hits = df[(df['gap'] >= params.get('gap_min', 0.5)) & (df['vol'] >= params.get('vol_min', 1000000))]
`
	assert.Equal(t, want, res.TransformedSource)
	assert.Equal(t, 2, res.Signature.Len())
}

func TestTransformLiteralShapes(t *testing.T) {
	source := `a = df['change'] <= -0.08
b = df['sector'] == 'tech'
c = df['active'] == True
`
	res := Transform(source, extractSig(t, source), Options{})
	require.Empty(t, res.Warnings)

	want := `a = df['change'] <= params.get('change_max', -0.08)
b = df['sector'] == params.get('sector_eq', 'tech')
c = df['active'] == params.get('active_eq', True)
`
	assert.Equal(t, want, res.TransformedSource)
}

func TestTransformTouchesOnlyLiteralLines(t *testing.T) {
	source := `import pandas as pd

def scan_gappers(df):
    lookup = ['AAPL', 'TSLA']
    mask = (df['gap'] >= 0.5) & (df['vol'] >= 1000000)
    mask &= df['close'] < 400
    return df[mask]
`
	res := Transform(source, extractSig(t, source), Options{})
	require.Empty(t, res.Warnings)

	d := diff.Compare("original", "transformed", source, res.TransformedSource)
	assert.Equal(t, []int{5, 6}, d.ChangedOldLines(),
		"only the two comparison lines may change")

	// Undoing each splice must recover the original byte for byte.
	undo := res.TransformedSource
	for _, b := range res.Signature.Structural() {
		undo = strings.Replace(undo, Lookup("params", b.Name, b.Value.Raw), b.Value.Raw, 1)
	}
	assert.Equal(t, source, undo)
}

func TestTransformCustomMapping(t *testing.T) {
	source := "mask = df['gap'] >= 0.5\n"
	res := Transform(source, extractSig(t, source), Options{Mapping: "cfg"})
	assert.Equal(t, "mask = df['gap'] >= cfg.get('gap_min', 0.5)\n", res.TransformedSource)
}

func TestTransformRejectsBadMapping(t *testing.T) {
	source := "mask = df['gap'] >= 0.5\n"
	res := Transform(source, extractSig(t, source), Options{Mapping: "my params"})
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not an identifier")
	assert.Contains(t, res.TransformedSource, "params.get('gap_min', 0.5)")
}

func TestTransformSkipsEnriched(t *testing.T) {
	source := "mask = df['gap'] >= 0.5\n"
	sig := scanner.BuildSignature(scanner.KindCustom, []scanner.ParameterBinding{
		{
			Name:       "gap_min",
			Value:      scanner.FloatLiteral(0.5, "0.5"),
			Span:       scanner.Span{Start: 20, End: 23},
			Confidence: 1.0,
			Origin:     scanner.OriginStructural,
		},
		{
			Name:       "volume_floor",
			Value:      scanner.IntLiteral(500000, "500000"),
			Confidence: 0.7,
			Origin:     scanner.OriginEnriched,
		},
	})
	res := Transform(source, &sig, Options{})
	assert.Empty(t, res.Warnings, "enriched bindings are skipped silently")
	assert.Equal(t, "mask = df['gap'] >= params.get('gap_min', 0.5)\n", res.TransformedSource)
}

func TestTransformAlreadyExternalized(t *testing.T) {
	source := "mask = df['gap'] >= params.get('gap_min', 0.5)\n"
	res := Transform(source, extractSig(t, source), Options{})
	assert.Equal(t, source, res.TransformedSource, "second pass must not re-wrap")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "already externalized")
}

func TestTransformStaleSignature(t *testing.T) {
	sig := extractSig(t, "mask = df['gap'] >= 0.5\n")
	other := "# moved around\nmask = df['gap'] >= 0.75\n"
	res := Transform(other, sig, Options{})
	assert.Equal(t, other, res.TransformedSource)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not match literal")
}

func TestTransformOutOfBoundsSpan(t *testing.T) {
	sig := scanner.BuildSignature(scanner.KindCustom, []scanner.ParameterBinding{{
		Name:       "gap_min",
		Value:      scanner.FloatLiteral(0.5, "0.5"),
		Span:       scanner.Span{Start: 90, End: 93},
		Confidence: 1.0,
		Origin:     scanner.OriginStructural,
	}})
	res := Transform("short = 1\n", &sig, Options{})
	assert.Equal(t, "short = 1\n", res.TransformedSource)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "out of bounds")
}

func TestTransformOverlappingSpans(t *testing.T) {
	source := "mask = df['gap'] >= 0.55\n"
	sig := scanner.BuildSignature(scanner.KindCustom, []scanner.ParameterBinding{
		{
			Name:       "gap_min",
			Value:      scanner.FloatLiteral(0.55, "0.55"),
			Span:       scanner.Span{Start: 20, End: 24},
			Confidence: 1.0,
			Origin:     scanner.OriginStructural,
		},
		{
			Name:       "gap_min_2",
			Value:      scanner.FloatLiteral(0.5, "0.5"),
			Span:       scanner.Span{Start: 20, End: 23},
			Confidence: 1.0,
			Origin:     scanner.OriginStructural,
		},
	})
	res := Transform(source, &sig, Options{})
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "overlaps")
	assert.Equal(t, "mask = df['gap'] >= params.get('gap_min', 0.55)\n", res.TransformedSource)
}

func TestTransformNilSignature(t *testing.T) {
	res := Transform("x = 1\n", nil, Options{})
	assert.Equal(t, "x = 1\n", res.TransformedSource)
	assert.Empty(t, res.Warnings)
}

func TestTransformedSourceStillParses(t *testing.T) {
	source := "mask = (df['gap'] >= 0.5) & (df['rsi'] < 70)\n"
	res := Transform(source, extractSig(t, source), Options{})
	_, err := extract.Extract(res.TransformedSource)
	assert.NoError(t, err)
}
