package split

import (
	sitter "github.com/smacker/go-tree-sitter"

	"scantuner/internal/pysrc"
)

// stmtClass partitions top-level statements by the role they play in a
// multi-pattern source.
type stmtClass int

const (
	// classPreamble statements (imports, frame definitions, function and
	// class definitions, comments, docstrings) are shared context and go
	// into every unit.
	classPreamble stmtClass = iota
	// classHelper statements compute local inputs and belong to whichever
	// pattern closures claim them.
	classHelper
	// classPattern statements write one pattern's boolean output column.
	classPattern
)

// statement is one analyzed top-level statement.
type statement struct {
	idx      int
	node     *sitter.Node
	class    stmtClass
	column   string          // frame column written, when the target is one
	defs     map[string]bool // identifiers this statement (re)binds
	uses     map[string]bool // identifiers this statement reads
	colReads map[string]bool // frame columns this statement reads
}

// analyzer walks the module top level once and classifies every statement
// against the detected pattern frame.
type analyzer struct {
	tree        *pysrc.Tree
	frame       string
	patternCols map[string]bool
	stmts       []*statement
}

func analyze(tree *pysrc.Tree) *analyzer {
	a := &analyzer{tree: tree, patternCols: make(map[string]bool)}
	a.detectFrame()
	root := tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		a.stmts = append(a.stmts, a.classify(i, root.NamedChild(i)))
	}
	a.promoteFrameDeps()
	return a
}

// promoteFrameDeps reclassifies helpers the frame's own definition depends
// on (raw = pd.read_csv(...) feeding df = raw[...]) as preamble: they are
// context every pattern needs, not per-pattern state.
func (a *analyzer) promoteFrameDeps() {
	if a.frame == "" {
		return
	}
	helperDefs := make(map[string][]*statement)
	for _, s := range a.stmts {
		if s.class != classHelper || s.column != "" {
			continue
		}
		for name := range s.defs {
			helperDefs[name] = append(helperDefs[name], s)
		}
	}

	seen := make(map[string]bool)
	var queue []string
	push := func(names map[string]bool) {
		for name := range names {
			if !seen[name] {
				seen[name] = true
				queue = append(queue, name)
			}
		}
	}
	for _, s := range a.stmts {
		if s.class == classPreamble && s.defs[a.frame] {
			push(s.uses)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, h := range helperDefs[name] {
			if h.class != classHelper {
				continue
			}
			h.class = classPreamble
			push(h.uses)
		}
	}
}

// detectFrame picks the frame identifier carrying the pattern outputs: the
// one with the most distinct columns written by top-level boolean
// assignments. Earlier frames win ties.
func (a *analyzer) detectFrame() {
	cols := make(map[string]map[string]bool)
	var order []string
	root := a.tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		assign := assignmentOf(root.NamedChild(i))
		if assign == nil || assign.Type() != "assignment" {
			continue
		}
		frame, column, ok := subscriptTarget(a.tree, assign.ChildByFieldName("left"))
		if !ok {
			continue
		}
		right := assign.ChildByFieldName("right")
		if right == nil || !booleanExpr(right) {
			continue
		}
		if cols[frame] == nil {
			cols[frame] = make(map[string]bool)
			order = append(order, frame)
		}
		cols[frame][column] = true
	}
	best := 0
	for _, frame := range order {
		if n := len(cols[frame]); n > best {
			best = n
			a.frame = frame
		}
	}
	if a.frame != "" {
		a.patternCols = cols[a.frame]
	}
}

func (a *analyzer) classify(idx int, n *sitter.Node) *statement {
	s := &statement{
		idx:      idx,
		node:     n,
		class:    classPreamble,
		defs:     make(map[string]bool),
		uses:     make(map[string]bool),
		colReads: make(map[string]bool),
	}

	switch n.Type() {
	case "comment":
		return s
	case "import_statement", "import_from_statement", "future_import_statement":
		a.importDefs(n, s.defs)
		return s
	case "function_definition", "class_definition", "decorated_definition":
		def := n
		if n.Type() == "decorated_definition" {
			if d := n.ChildByFieldName("definition"); d != nil {
				def = d
			}
		}
		if name := def.ChildByFieldName("name"); name != nil {
			s.defs[a.tree.Text(name)] = true
		}
		a.identifiers(n, s.uses)
		a.columnReads(n, nil, s.colReads)
		return s
	case "expression_statement":
		var exprs []*sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() != "comment" {
				exprs = append(exprs, c)
			}
		}
		if len(exprs) == 0 {
			return s
		}
		if len(exprs) > 1 {
			break // semicolon-joined statements: fall through to compound handling
		}
		expr := exprs[0]
		switch expr.Type() {
		case "assignment", "augmented_assignment":
			a.classifyAssignment(s, expr)
			return s
		case "string":
			return s // docstring
		}
		// Bare expression: reads only. The split pass rejects it if it
		// touches helper state.
		a.identifiers(n, s.uses)
		a.columnReads(n, nil, s.colReads)
		return s
	}

	// Compound statement (if/for/while/with/try). Collect everything it
	// touches; the split pass degrades when that intersects helper state.
	a.identifiers(n, s.uses)
	a.identifiers(n, s.defs) // targets inside are invisible here; treat all names as both
	a.columnReads(n, nil, s.colReads)
	s.class = classPreamble
	return s
}

func (a *analyzer) classifyAssignment(s *statement, assign *sitter.Node) {
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if left == nil || right == nil {
		a.identifiers(assign, s.uses)
		return
	}

	a.identifiers(right, s.uses)
	a.columnReads(right, nil, s.colReads)
	augmented := assign.Type() == "augmented_assignment"

	if frame, column, ok := subscriptTarget(a.tree, left); ok && frame == a.frame {
		s.column = column
		if a.patternCols[column] {
			s.class = classPattern
		} else {
			s.class = classHelper
		}
		if augmented {
			s.colReads[column] = true
		}
		return
	}

	s.class = classHelper
	a.targetDefs(left, s.defs)
	if augmented {
		a.identifiers(left, s.uses)
	}
	if _, _, ok := subscriptTarget(a.tree, left); ok {
		// Mutating another container still reads it.
		a.identifiers(left, s.uses)
	}

	// Assigning the frame itself is context every pattern shares.
	if left.Type() == "identifier" && a.tree.Text(left) == a.frame {
		s.class = classPreamble
		return
	}
}

// targetDefs records the identifiers bound by an assignment target,
// including tuple and list unpacking and container mutation bases.
func (a *analyzer) targetDefs(target *sitter.Node, into map[string]bool) {
	switch target.Type() {
	case "identifier":
		into[a.tree.Text(target)] = true
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			a.targetDefs(target.NamedChild(i), into)
		}
	case "subscript", "attribute":
		base := target.ChildByFieldName("value")
		if target.Type() == "attribute" {
			base = target.ChildByFieldName("object")
		}
		if base != nil && base.Type() == "identifier" {
			into[a.tree.Text(base)] = true
		}
	}
}

// importDefs records the names an import statement binds.
func (a *analyzer) importDefs(n *sitter.Node, into map[string]bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				into[a.tree.Text(alias)] = true
			}
		case "dotted_name":
			// For plain imports the first segment is the bound name; in a
			// from-import the module path is the field, the names are the
			// other children, and both resolve the same way here.
			if first := child.NamedChild(0); first != nil && first.Type() == "identifier" {
				into[a.tree.Text(first)] = true
			}
		}
	}
}

// identifiers collects free identifier reads under root. Attribute members
// and keyword-argument names are not reads; over-collection elsewhere is
// acceptable because extra dependencies only make the split more cautious.
func (a *analyzer) identifiers(root *sitter.Node, into map[string]bool) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier":
			into[a.tree.Text(n)] = true
			return
		case "attribute":
			if obj := n.ChildByFieldName("object"); obj != nil {
				walk(obj)
			}
			return
		case "keyword_argument":
			if v := n.ChildByFieldName("value"); v != nil {
				walk(v)
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
}

// columnReads collects frame columns read under root, skipping the node
// exclude (an assignment target, so writing a column is not reading it).
func (a *analyzer) columnReads(root, exclude *sitter.Node, into map[string]bool) {
	if a.frame == "" {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if exclude != nil && n.StartByte() == exclude.StartByte() && n.EndByte() == exclude.EndByte() {
			return
		}
		if n.Type() == "subscript" {
			if frame, column, ok := subscriptTarget(a.tree, n); ok && frame == a.frame {
				into[column] = true
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
}

// assignmentOf unwraps an expression_statement holding exactly one
// assignment, or returns nil.
func assignmentOf(n *sitter.Node) *sitter.Node {
	if n.Type() != "expression_statement" {
		return nil
	}
	var expr *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		if expr != nil {
			return nil
		}
		expr = c
	}
	if expr == nil || (expr.Type() != "assignment" && expr.Type() != "augmented_assignment") {
		return nil
	}
	return expr
}

// subscriptTarget decomposes a string subscript of an identifier.
func subscriptTarget(t *pysrc.Tree, n *sitter.Node) (frame, column string, ok bool) {
	if n == nil || n.Type() != "subscript" {
		return "", "", false
	}
	frame, column, ok = pysrc.DecodeFieldRef(t, n)
	return frame, column, ok
}

// booleanExpr reports whether an expression produces a boolean mask:
// comparisons, boolean combinators, and the element-wise &, |, ^ and ~
// forms pandas uses.
func booleanExpr(n *sitter.Node) bool {
	n = pysrc.Unparen(n)
	if n == nil {
		return false
	}
	switch n.Type() {
	case "comparison_operator", "boolean_operator", "not_operator":
		return true
	case "binary_operator":
		if op := n.ChildByFieldName("operator"); op != nil {
			switch op.Type() {
			case "&", "|", "^":
				return true
			}
		}
	case "unary_operator":
		if op := n.ChildByFieldName("operator"); op != nil && op.Type() == "~" {
			return true
		}
	}
	return false
}
