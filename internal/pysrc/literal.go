package pysrc

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"scantuner/internal/scanner"
)

// DecodeLiteral decodes a scalar literal operand: an integer, float, string,
// or boolean node, optionally wrapped in parentheses and/or a single unary
// +/- sign. The returned span is the replaceable region — for a signed
// number it covers the sign, for a parenthesized literal it covers only the
// inner literal so the parentheses survive a rewrite untouched.
func DecodeLiteral(t *Tree, n *sitter.Node) (scanner.Literal, scanner.Span, bool) {
	n = Unparen(n)
	if n == nil {
		return scanner.Literal{}, scanner.Span{}, false
	}

	if n.Type() == "unary_operator" {
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		if op == nil || arg == nil {
			return scanner.Literal{}, scanner.Span{}, false
		}
		arg = Unparen(arg)
		if arg == nil || (arg.Type() != "integer" && arg.Type() != "float") {
			return scanner.Literal{}, scanner.Span{}, false
		}
		lit, ok := decodeScalar(t, arg)
		if !ok {
			return scanner.Literal{}, scanner.Span{}, false
		}
		raw := t.Text(n)
		switch op.Type() {
		case "-":
			if lit.Kind == scanner.LiteralInt {
				lit = scanner.IntLiteral(-lit.Int, raw)
			} else {
				lit = scanner.FloatLiteral(-lit.Float, raw)
			}
		case "+":
			lit.Raw = raw
		default:
			return scanner.Literal{}, scanner.Span{}, false
		}
		return lit, t.Span(n), true
	}

	lit, ok := decodeScalar(t, n)
	if !ok {
		return scanner.Literal{}, scanner.Span{}, false
	}
	return lit, t.Span(n), true
}

// decodeScalar handles the four bare literal node types.
func decodeScalar(t *Tree, n *sitter.Node) (scanner.Literal, bool) {
	raw := t.Text(n)
	switch n.Type() {
	case "integer":
		s := strings.ReplaceAll(raw, "_", "")
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return scanner.Literal{}, false
		}
		return scanner.IntLiteral(v, raw), true
	case "float":
		s := strings.ReplaceAll(raw, "_", "")
		if strings.HasSuffix(s, "j") || strings.HasSuffix(s, "J") {
			return scanner.Literal{}, false // imaginary, not a threshold
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return scanner.Literal{}, false
		}
		return scanner.FloatLiteral(v, raw), true
	case "string":
		content, ok := stringContent(raw)
		if !ok {
			return scanner.Literal{}, false
		}
		return scanner.StringLiteral(content, raw), true
	case "true":
		return scanner.BoolLiteral(true, raw), true
	case "false":
		return scanner.BoolLiteral(false, raw), true
	}
	return scanner.Literal{}, false
}

// Unparen strips any number of parenthesized_expression wrappers,
// skipping interior comment nodes.
func Unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		var inner *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() != "comment" {
				inner = c
				break
			}
		}
		n = inner
	}
	return n
}

// stringContent recovers the text of a plain Python string literal from its
// raw source form. f-strings and bytes literals are rejected; raw/unicode
// prefixes are accepted. Only the common escape sequences are translated —
// column names in practice never use exotic ones.
func stringContent(raw string) (string, bool) {
	quote := strings.IndexAny(raw, `'"`)
	if quote < 0 {
		return "", false
	}
	prefix := strings.ToLower(raw[:quote])
	if strings.ContainsAny(prefix, "bf") {
		return "", false
	}
	body := raw[quote:]
	for _, q := range []string{`'''`, `"""`, `'`, `"`} {
		if strings.HasPrefix(body, q) && strings.HasSuffix(body, q) && len(body) >= 2*len(q) {
			body = body[len(q) : len(body)-len(q)]
			break
		}
	}
	if strings.Contains(prefix, "r") {
		return body, true
	}
	if !strings.Contains(body, `\`) {
		return body, true
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String(), true
}

// DecodeFieldRef reports whether n is a field reference: a string subscript
// of an identifier (df['gap']) or an attribute access on an identifier that
// is not itself being called (df.gap yes, df.mean() no). It returns the
// frame identifier and the column name.
func DecodeFieldRef(t *Tree, n *sitter.Node) (frame, column string, ok bool) {
	n = Unparen(n)
	if n == nil {
		return "", "", false
	}
	switch n.Type() {
	case "subscript":
		value := n.ChildByFieldName("value")
		sub := n.ChildByFieldName("subscript")
		if value == nil || sub == nil || value.Type() != "identifier" || sub.Type() != "string" {
			return "", "", false
		}
		content, sok := stringContent(t.Text(sub))
		if !sok {
			return "", "", false
		}
		return t.Text(value), content, true
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return "", "", false
		}
		if parent := n.Parent(); parent != nil && parent.Type() == "call" {
			fn := parent.ChildByFieldName("function")
			if fn != nil && fn.StartByte() == n.StartByte() && fn.EndByte() == n.EndByte() {
				return "", "", false
			}
		}
		return t.Text(obj), t.Text(attr), true
	}
	return "", "", false
}

// DecodeLookup recognizes an externalized parameter expression of the form
// <mapping>.get('<name>', <literal>). It returns the embedded parameter
// name, the default literal, and the span of the default literal. Sources
// that already went through the transform re-derive their bindings through
// this path.
func DecodeLookup(t *Tree, n *sitter.Node) (name string, lit scanner.Literal, span scanner.Span, ok bool) {
	n = Unparen(n)
	if n == nil || n.Type() != "call" {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Type() != "attribute" {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	obj := fn.ChildByFieldName("object")
	attr := fn.ChildByFieldName("attribute")
	if obj == nil || attr == nil || obj.Type() != "identifier" || t.Text(attr) != "get" {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	if args.NamedChildCount() != 2 {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	key := args.NamedChild(0)
	if key.Type() != "string" {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	content, sok := stringContent(t.Text(key))
	if !sok {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	lit, span, ok = DecodeLiteral(t, args.NamedChild(1))
	if !ok {
		return "", scanner.Literal{}, scanner.Span{}, false
	}
	return content, lit, span, true
}
