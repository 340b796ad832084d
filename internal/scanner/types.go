// Package scanner defines the value types shared by every stage of the
// parameter-integrity pipeline: literals, bindings, signatures, and the
// result shapes returned to callers.
//
// Everything here is a plain value. Instances are built fresh per
// invocation and never shared between pipeline runs; callers own whatever
// they receive.
package scanner

import (
	"fmt"
	"strconv"
)

// Origin records how a binding was discovered.
type Origin string

const (
	// OriginStructural bindings come from walking the parse tree and carry
	// a verifiable source span.
	OriginStructural Origin = "structural"
	// OriginEnriched bindings were proposed by the enrichment service and
	// are descriptive only (no span, confidence < 1).
	OriginEnriched Origin = "enriched"
)

// ScannerKind classifies the overall shape of a scanner source file.
type ScannerKind string

const (
	// KindFilterFunc marks sources built around a named filter-construction
	// function (def build_scan(df): ...).
	KindFilterFunc ScannerKind = "filter_func"
	// KindParamMap marks sources that declare thresholds in a flat
	// parameter dict and reference it from the filter expression.
	KindParamMap ScannerKind = "param_map"
	// KindCustom is the fallback when no classification rule matches.
	KindCustom ScannerKind = "custom"
)

// LiteralKind tags the closed set of literal value shapes the engine
// extracts from comparisons.
type LiteralKind int

const (
	LiteralInt LiteralKind = iota
	LiteralFloat
	LiteralString
	LiteralBool
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralInt:
		return "int"
	case LiteralFloat:
		return "float"
	case LiteralString:
		return "str"
	case LiteralBool:
		return "bool"
	}
	return fmt.Sprintf("literal(%d)", int(k))
}

// Literal is one scalar threshold value. It keeps both the parsed value and
// the exact raw source text: Raw is what the transform splices back into
// rewritten code, so defaults stay byte-identical to the original program.
type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	// Raw is the literal exactly as written in the source, including sign
	// and quotes. Empty for enriched bindings, which have no source form.
	Raw string
}

// IntLiteral builds an integer literal.
func IntLiteral(v int64, raw string) Literal {
	return Literal{Kind: LiteralInt, Int: v, Raw: raw}
}

// FloatLiteral builds a floating-point literal.
func FloatLiteral(v float64, raw string) Literal {
	return Literal{Kind: LiteralFloat, Float: v, Raw: raw}
}

// StringLiteral builds a string literal. content is the unquoted value.
func StringLiteral(content, raw string) Literal {
	return Literal{Kind: LiteralString, Str: content, Raw: raw}
}

// BoolLiteral builds a boolean literal.
func BoolLiteral(v bool, raw string) Literal {
	return Literal{Kind: LiteralBool, Bool: v, Raw: raw}
}

// Canonical returns the normalized type-tagged form used for signature
// hashing, e.g. "float:0.5" or "str:breakout". Two literals with the same
// canonical form are the same parameter value regardless of source
// formatting (0.50 and 0.5 hash alike).
func (l Literal) Canonical() string {
	switch l.Kind {
	case LiteralInt:
		return "int:" + strconv.FormatInt(l.Int, 10)
	case LiteralFloat:
		return "float:" + strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LiteralString:
		return "str:" + l.Str
	case LiteralBool:
		return "bool:" + strconv.FormatBool(l.Bool)
	}
	return "unknown:"
}

// Equal reports whether two literals hold the same value.
func (l Literal) Equal(other Literal) bool {
	return l.Canonical() == other.Canonical()
}

// String renders the literal for messages and reports. Prefers the raw
// source form when available.
func (l Literal) String() string {
	if l.Raw != "" {
		return l.Raw
	}
	switch l.Kind {
	case LiteralInt:
		return strconv.FormatInt(l.Int, 10)
	case LiteralFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LiteralString:
		return strconv.Quote(l.Str)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	}
	return "<invalid>"
}

// MarshalJSON emits the native JSON value (number, string, or bool) rather
// than the struct fields, so CLI output reads like a parameter file.
func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LiteralInt:
		return []byte(strconv.FormatInt(l.Int, 10)), nil
	case LiteralFloat:
		return []byte(strconv.FormatFloat(l.Float, 'g', -1, 64)), nil
	case LiteralString:
		return []byte(strconv.Quote(l.Str)), nil
	case LiteralBool:
		return []byte(strconv.FormatBool(l.Bool)), nil
	}
	return nil, fmt.Errorf("cannot marshal literal kind %d", int(l.Kind))
}

// Span is a half-open byte range [Start, End) into a source string.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Valid reports whether the span describes a non-empty range.
func (s Span) Valid() bool {
	return s.Start >= 0 && s.End > s.Start
}

// Len returns the number of bytes covered.
func (s Span) Len() int {
	if !s.Valid() {
		return 0
	}
	return s.End - s.Start
}

// Within reports whether s lies entirely inside outer.
func (s Span) Within(outer Span) bool {
	return s.Start >= outer.Start && s.End <= outer.End
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// ParameterBinding is one named threshold extracted from a filtering
// comparison. Names are unique within a signature; insertion order is
// significant and feeds the content hash.
type ParameterBinding struct {
	Name       string  `json:"name"`
	Value      Literal `json:"value"`
	Span       Span    `json:"span"`
	Confidence float64 `json:"confidence"`
	Origin     Origin  `json:"origin"`
	// FromLookup marks bindings recovered from an already-externalized
	// lookup expression (mapping.get('name', default)). The transform
	// leaves these in place instead of wrapping them twice.
	FromLookup bool `json:"from_lookup,omitempty"`
}

// TransformResult is the output of externalizing one scanner unit. The
// engine hands it to the caller and retains nothing.
type TransformResult struct {
	TransformedSource string    `json:"transformed_source"`
	Signature         Signature `json:"signature"`
	Warnings          []string  `json:"warnings,omitempty"`
}

// VerificationReport records the outcome of re-extracting a transformed
// source and diffing it against the original's parameter set.
type VerificationReport struct {
	Verified    bool      `json:"verified"`
	Original    Signature `json:"original"`
	Transformed Signature `json:"transformed"`
	// Differences itemizes every divergence: names present on one side
	// only, and names present on both with differing values. Empty iff
	// Verified.
	Differences []string `json:"differences,omitempty"`
}

// ScannerUnit is one independently evaluable pattern carved out of a
// multi-pattern source. Bindings hold only the parameters whose spans fall
// inside Code; a binding needed by two units is copied into each.
type ScannerUnit struct {
	Name     string             `json:"name"`
	Code     string             `json:"code"`
	Bindings []ParameterBinding `json:"bindings"`
}
