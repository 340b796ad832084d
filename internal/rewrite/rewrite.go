// Package rewrite implements the externalization transform. Every
// structurally extracted literal is replaced, in place, by a lookup into a
// caller-supplied configuration mapping that defaults to the original
// literal text. Bytes outside the recorded spans are never touched; any
// binding the transform cannot splice safely is skipped with a warning
// rather than guessed at.
package rewrite

import (
	"fmt"
	"sort"

	"scantuner/internal/scanner"
)

// DefaultMapping is the identifier rewritten lookups read from when the
// caller does not choose one.
const DefaultMapping = "params"

// Options adjust the transform output.
type Options struct {
	// Mapping is the configuration mapping identifier, default "params".
	Mapping string
}

// Transform rewrites source according to the signature's structural
// bindings. The returned result carries the rewritten text, the signature
// it was derived from, and a warning per skipped binding.
func Transform(source string, sig *scanner.Signature, opts Options) scanner.TransformResult {
	res := scanner.TransformResult{TransformedSource: source}
	if sig == nil {
		return res
	}
	res.Signature = *sig

	mapping := opts.Mapping
	if mapping == "" {
		mapping = DefaultMapping
	}
	if !validMapping(mapping) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("mapping %q is not an identifier, using %q", mapping, DefaultMapping))
		mapping = DefaultMapping
	}

	var splices []scanner.ParameterBinding
	for _, b := range sig.Bindings {
		switch {
		case b.Origin != scanner.OriginStructural:
			// Enriched bindings carry no verifiable span; descriptive only.
		case b.FromLookup:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: already externalized, left unchanged", b.Name))
		case !b.Span.Valid() || b.Span.End > len(source):
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: span [%d,%d) out of bounds, skipped", b.Name, b.Span.Start, b.Span.End))
		case source[b.Span.Start:b.Span.End] != b.Value.Raw:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: span text %q does not match literal %q, skipped",
				b.Name, source[b.Span.Start:b.Span.End], b.Value.Raw))
		default:
			splices = append(splices, b)
		}
	}

	// Stable keeps signature order on equal starts, so the earlier binding
	// wins an overlap.
	sort.SliceStable(splices, func(i, j int) bool { return splices[i].Span.Start < splices[j].Span.Start })

	kept := splices[:0]
	for i, b := range splices {
		if i > 0 && b.Span.Overlaps(kept[len(kept)-1].Span) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: span overlaps %s, skipped", b.Name, kept[len(kept)-1].Name))
			continue
		}
		kept = append(kept, b)
	}

	if len(kept) == 0 {
		return res
	}

	var out []byte
	prev := 0
	for _, b := range kept {
		out = append(out, source[prev:b.Span.Start]...)
		out = append(out, Lookup(mapping, b.Name, b.Value.Raw)...)
		prev = b.Span.End
	}
	out = append(out, source[prev:]...)
	res.TransformedSource = string(out)
	return res
}

// Lookup renders the externalized expression for one parameter.
func Lookup(mapping, name, raw string) string {
	return fmt.Sprintf("%s.get('%s', %s)", mapping, name, raw)
}

// validMapping reports whether s can stand as a Python identifier in the
// rewritten expression.
func validMapping(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
