package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"scantuner/internal/pysrc"
	"scantuner/internal/scanner"
)

// kindRule is one row of the classification table. Rules run in order and
// the first match wins; extending classification means appending a row,
// not threading a new branch through the walk.
type kindRule struct {
	tag     string
	kind    scanner.ScannerKind
	matches func(t *pysrc.Tree) bool
}

var kindRules = []kindRule{
	{tag: "named filter-construction function", kind: scanner.KindFilterFunc, matches: hasFilterFunc},
	{tag: "flat parameter map", kind: scanner.KindParamMap, matches: hasParamMap},
}

func classifyKind(t *pysrc.Tree) scanner.ScannerKind {
	for _, r := range kindRules {
		if r.matches(t) {
			return r.kind
		}
	}
	return scanner.KindCustom
}

var filterFuncMarkers = []string{"scan", "filter", "screen"}

func hasFilterFunc(t *pysrc.Tree) bool {
	found := false
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found {
			return
		}
		if n.Type() == "function_definition" {
			if name := n.ChildByFieldName("name"); name != nil {
				lower := strings.ToLower(t.Text(name))
				for _, marker := range filterFuncMarkers {
					if strings.Contains(lower, marker) {
						found = true
						return
					}
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(t.Root())
	return found
}

var paramMapNames = map[string]bool{
	"params":     true,
	"config":     true,
	"settings":   true,
	"thresholds": true,
}

// hasParamMap looks for a top-level dict literal assigned to an identifier
// conventionally used for parameter maps.
func hasParamMap(t *pysrc.Tree) bool {
	root := t.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "expression_statement" {
			continue
		}
		expr := stmt.NamedChild(0)
		if expr == nil || expr.Type() != "assignment" {
			continue
		}
		left := expr.ChildByFieldName("left")
		right := expr.ChildByFieldName("right")
		if left == nil || right == nil {
			continue
		}
		if left.Type() == "identifier" && right.Type() == "dictionary" && paramMapNames[strings.ToLower(t.Text(left))] {
			return true
		}
	}
	return false
}
