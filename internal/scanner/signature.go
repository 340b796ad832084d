package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Signature is the ordered parameter set of one scanner unit plus a
// content hash over it. Built once via BuildSignature and immutable after
// that: two signatures describe the same parameter set iff their hashes
// are equal.
//
// Hash construction:
//  1. Take the bindings in insertion order (order is meaningful — swapping
//     two comparisons in the source is a different signature).
//  2. Render each as name=canonical (see Literal.Canonical).
//  3. Join with '\n' and SHA-256 the result.
//
// Spans, confidence, origin, and the scanner kind deliberately stay out of
// the digest: the hash answers "same parameters, same values, same order"
// and nothing else, which is exactly what transform verification compares.
type Signature struct {
	Kind     ScannerKind        `json:"kind"`
	Bindings []ParameterBinding `json:"bindings"`

	byName map[string]int
	hash   [sha256.Size]byte
}

// BuildSignature constructs a signature from bindings in the given order.
// The slice is copied; later mutation of the argument does not leak in.
// Duplicate names keep the first occurrence and drop the rest — name
// uniqueness is the extractor's job, this is the last line of defense.
func BuildSignature(kind ScannerKind, bindings []ParameterBinding) Signature {
	sig := Signature{
		Kind:     kind,
		Bindings: make([]ParameterBinding, 0, len(bindings)),
		byName:   make(map[string]int, len(bindings)),
	}
	for _, b := range bindings {
		if _, dup := sig.byName[b.Name]; dup {
			continue
		}
		sig.byName[b.Name] = len(sig.Bindings)
		sig.Bindings = append(sig.Bindings, b)
	}
	sig.hash = sha256.Sum256([]byte(sig.canonical()))
	return sig
}

// canonical renders the ordered binding list as a stable string.
func (s *Signature) canonical() string {
	parts := make([]string, len(s.Bindings))
	for i, b := range s.Bindings {
		parts[i] = b.Name + "=" + b.Value.Canonical()
	}
	return strings.Join(parts, "\n")
}

// ContentHash returns the full digest as lowercase hex.
func (s *Signature) ContentHash() string {
	return hex.EncodeToString(s.hash[:])
}

// ShortHash returns the first eight hex characters, for logs and tables.
func (s *Signature) ShortHash() string {
	return s.ContentHash()[:8]
}

// Equal reports whether both signatures digest to the same hash.
func (s *Signature) Equal(other *Signature) bool {
	return s.hash == other.hash
}

// Lookup returns the binding with the given name, if present.
func (s *Signature) Lookup(name string) (ParameterBinding, bool) {
	i, ok := s.byName[name]
	if !ok {
		return ParameterBinding{}, false
	}
	return s.Bindings[i], true
}

// Len returns the number of bindings.
func (s *Signature) Len() int {
	return len(s.Bindings)
}

// Structural returns the bindings with OriginStructural, in order.
func (s *Signature) Structural() []ParameterBinding {
	out := make([]ParameterBinding, 0, len(s.Bindings))
	for _, b := range s.Bindings {
		if b.Origin == OriginStructural {
			out = append(out, b)
		}
	}
	return out
}

// MarshalJSON includes the content hash alongside the exported fields.
func (s Signature) MarshalJSON() ([]byte, error) {
	type alias struct {
		Kind        ScannerKind        `json:"kind"`
		Bindings    []ParameterBinding `json:"bindings"`
		ContentHash string             `json:"content_hash"`
	}
	return json.Marshal(alias{
		Kind:        s.Kind,
		Bindings:    s.Bindings,
		ContentHash: s.ContentHash(),
	})
}
