// Package extract implements the structural extractor: it walks a parsed
// scanner source for comparison expressions that pit a field reference
// against a scalar literal and derives a deterministic, insertion-ordered
// parameter signature from them.
package extract

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"scantuner/internal/pysrc"
	"scantuner/internal/scanner"
)

// Extract parses source and returns its structural signature. The walk is
// pure and deterministic: the same source always yields the same bindings
// in the same order, and therefore the same content hash. A syntactically
// invalid source fails with a *pysrc.ParseError.
func Extract(source string) (*scanner.Signature, error) {
	tree, err := pysrc.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	w := newWalker(tree)
	w.walk(tree.Root())
	sig := scanner.BuildSignature(classifyKind(tree), w.bindings)
	return &sig, nil
}

// walker accumulates bindings in source order. Names are unique within one
// walk; collisions take the smallest unused _N suffix.
type walker struct {
	tree     *pysrc.Tree
	bindings []scanner.ParameterBinding
	used     map[string]bool
}

func newWalker(t *pysrc.Tree) *walker {
	return &walker{tree: t, used: make(map[string]bool)}
}

func (w *walker) walk(n *sitter.Node) {
	if n.Type() == "comparison_operator" {
		w.visitComparison(n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

// visitComparison records one binding per (field, literal) operand pair.
// Chained comparisons are decomposed pairwise, so 0.5 <= df['gap'] <= 1.2
// yields gap_min and gap_max. Nested comparisons inside the operands are
// picked up by the surrounding walk, not here.
func (w *walker) visitComparison(n *sitter.Node) {
	operands, ops := pysrc.ComparisonParts(n)
	if len(operands) != len(ops)+1 {
		return
	}
	for i, op := range ops {
		w.visitPair(operands[i], op, operands[i+1])
	}
}

func (w *walker) visitPair(left *sitter.Node, op string, right *sitter.Node) {
	if _, _, ok := pysrc.DecodeFieldRef(w.tree, left); ok {
		w.bind(left, op, right)
		return
	}
	if _, _, ok := pysrc.DecodeFieldRef(w.tree, right); ok {
		w.bind(right, flip(op), left)
	}
}

// bind records a binding for a field compared against other under op, where
// op is already normalized to the field-on-the-left orientation. Membership
// and identity operators never bind: a lookup table is not a threshold.
func (w *walker) bind(field *sitter.Node, op string, other *sitter.Node) {
	suffix, ok := opSuffix(op)
	if !ok {
		return
	}
	_, column, _ := pysrc.DecodeFieldRef(w.tree, field)

	if name, lit, span, ok := pysrc.DecodeLookup(w.tree, other); ok {
		w.used[name] = true
		w.bindings = append(w.bindings, scanner.ParameterBinding{
			Name:       name,
			Value:      lit,
			Span:       span,
			Confidence: 1.0,
			Origin:     scanner.OriginStructural,
			FromLookup: true,
		})
		return
	}

	lit, span, ok := pysrc.DecodeLiteral(w.tree, other)
	if !ok {
		return
	}
	w.bindings = append(w.bindings, scanner.ParameterBinding{
		Name:       w.uniqueName(paramName(column) + suffix),
		Value:      lit,
		Span:       span,
		Confidence: 1.0,
		Origin:     scanner.OriginStructural,
	})
}

func (w *walker) uniqueName(base string) string {
	if !w.used[base] {
		w.used[base] = true
		return base
	}
	for i := 2; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !w.used[name] {
			w.used[name] = true
			return name
		}
	}
}

// opSuffix maps a field-side relational operator to its parameter-name
// suffix. Operators outside the table carry no threshold semantics.
func opSuffix(op string) (string, bool) {
	switch op {
	case ">", ">=":
		return "_min", true
	case "<", "<=":
		return "_max", true
	case "==":
		return "_eq", true
	case "!=":
		return "_ne", true
	}
	return "", false
}

// flip mirrors an operator across the comparison, for literals written on
// the left (0.5 <= df['gap'] means gap >= 0.5).
func flip(op string) string {
	switch op {
	case ">":
		return "<"
	case ">=":
		return "<="
	case "<":
		return ">"
	case "<=":
		return ">="
	}
	return op
}

// paramName normalizes a column name into a parameter-safe identifier
// fragment. Anything outside [A-Za-z0-9_] becomes an underscore.
func paramName(column string) string {
	out := []byte(column)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
