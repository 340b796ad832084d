// Package pysrc wraps Tree-sitter parsing of Python scanner source and the
// node-level plumbing the extractor, splitter, and transform share: byte
// spans, literal decoding, field-reference detection, and recognition of
// externalized lookup expressions.
//
// Tree-sitter never refuses input; it degrades by inserting error nodes.
// Parse converts that degradation into a typed ParseError so downstream
// stages only ever see structurally sound trees.
package pysrc

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"scantuner/internal/scanner"
)

// ErrInvalidSource is the sentinel wrapped by every ParseError.
var ErrInvalidSource = errors.New("source is not valid python")

// ParseError reports the first structurally invalid region of a source
// file. Position is 1-based.
type ParseError struct {
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid python source at line %d, column %d", e.Line, e.Column)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidSource
}

// Tree is a parsed source file. Callers must Close it when done; nodes are
// only valid while the tree is alive.
type Tree struct {
	src  []byte
	tree *sitter.Tree
}

// Parse parses source and rejects it if the tree contains error or missing
// nodes. Each call owns its parser, so Parse is safe to use from any
// number of goroutines.
func Parse(source string) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		line, col := firstErrorPosition(root)
		tree.Close()
		return nil, &ParseError{Line: line, Column: col}
	}

	return &Tree{src: []byte(source), tree: tree}, nil
}

// firstErrorPosition locates the earliest error or missing node.
func firstErrorPosition(root *sitter.Node) (line, col int) {
	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || found != nil {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return
		}
		if !n.HasError() {
			return // no error anywhere below, skip the subtree
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	if found == nil {
		found = root
	}
	return int(found.StartPoint().Row) + 1, int(found.StartPoint().Column) + 1
}

// Close releases the underlying tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the raw bytes the tree was parsed from.
func (t *Tree) Source() []byte {
	return t.src
}

// Text returns the exact source text of a node.
func (t *Tree) Text(n *sitter.Node) string {
	return n.Content(t.src)
}

// Span returns the node's byte range in the source.
func (t *Tree) Span(n *sitter.Node) scanner.Span {
	return scanner.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// ComparisonParts splits a comparison_operator node into its operand nodes
// (named children, in source order) and operator token strings. The word
// pairs "is not" and "not in" are merged back into single operators so a
// chain always satisfies len(ops) == len(operands)-1.
func ComparisonParts(n *sitter.Node) (operands []*sitter.Node, ops []string) {
	var tokens []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() {
			operands = append(operands, child)
			continue
		}
		tokens = append(tokens, child.Type())
	}
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if tokens[i] == "is" && tokens[i+1] == "not" {
				ops = append(ops, "is not")
				i++
				continue
			}
			if tokens[i] == "not" && tokens[i+1] == "in" {
				ops = append(ops, "not in")
				i++
				continue
			}
		}
		ops = append(ops, tokens[i])
	}
	return operands, ops
}
