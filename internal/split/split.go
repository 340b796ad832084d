// Package split detects when one scanner source encodes several
// independently named boolean patterns and partitions the code and its
// parameter bindings into standalone units with non-overlapping ownership.
// Whenever pattern boundaries cannot be cut cleanly — a helper feeding two
// patterns, one pattern reading another's output — the splitter degrades
// to a single whole-file unit instead of guessing a wrong split.
package split

import (
	"fmt"
	"sort"
	"strings"

	"scantuner/internal/extract"
	"scantuner/internal/pysrc"
	"scantuner/internal/scanner"
)

// FallbackUnitName names the single unit returned when no split happens.
const FallbackUnitName = "scanner"

// Result is the splitter's outcome. Units is never empty for a parseable
// source: either one unit per detected pattern, or the whole file as one.
type Result struct {
	Units []scanner.ScannerUnit
	// Ambiguous is set when multi-pattern evidence existed but clean
	// closures could not be cut; Reasons records each conflict.
	Ambiguous bool
	Reasons   []string
}

// pattern groups the statements writing one output column.
type pattern struct {
	column  string
	stmts   []*statement
	claimed map[int]bool
}

// Split partitions source into scanner units. The only failure mode is a
// syntactically invalid source.
func Split(source string) (*Result, error) {
	tree, err := pysrc.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	sig, err := extract.Extract(source)
	if err != nil {
		return nil, err
	}

	a := analyze(tree)
	patterns := collectPatterns(a)
	if len(patterns) < 2 {
		return &Result{Units: []scanner.ScannerUnit{wholeUnit(source, sig)}}, nil
	}

	r := newResolver(a, patterns)
	if reasons := r.resolve(sig); len(reasons) > 0 {
		return &Result{
			Units:     []scanner.ScannerUnit{wholeUnit(source, sig)},
			Ambiguous: true,
			Reasons:   reasons,
		}, nil
	}

	return &Result{Units: buildUnits(a, patterns, sig)}, nil
}

func wholeUnit(source string, sig *scanner.Signature) scanner.ScannerUnit {
	return scanner.ScannerUnit{
		Name:     FallbackUnitName,
		Code:     source,
		Bindings: sig.Bindings,
	}
}

// collectPatterns groups pattern statements by column, ordered by first
// write.
func collectPatterns(a *analyzer) []*pattern {
	byColumn := make(map[string]*pattern)
	var out []*pattern
	for _, s := range a.stmts {
		if s.class != classPattern {
			continue
		}
		p := byColumn[s.column]
		if p == nil {
			p = &pattern{column: s.column, claimed: make(map[int]bool)}
			byColumn[s.column] = p
			out = append(out, p)
		}
		p.stmts = append(p.stmts, s)
	}
	return out
}

// resolver computes each pattern's helper closure and collects every
// conflict that would make a split unsafe.
type resolver struct {
	a            *analyzer
	patterns     []*pattern
	helperByName map[string][]*statement
	helperByCol  map[string][]*statement
	claims       map[int]map[string]bool
	reasons      []string
}

func newResolver(a *analyzer, patterns []*pattern) *resolver {
	r := &resolver{
		a:            a,
		patterns:     patterns,
		helperByName: make(map[string][]*statement),
		helperByCol:  make(map[string][]*statement),
		claims:       make(map[int]map[string]bool),
	}
	for _, s := range a.stmts {
		if s.class != classHelper {
			continue
		}
		if s.column != "" {
			r.helperByCol[s.column] = append(r.helperByCol[s.column], s)
			continue
		}
		for name := range s.defs {
			r.helperByName[name] = append(r.helperByName[name], s)
		}
	}
	return r
}

func (r *resolver) resolve(sig *scanner.Signature) []string {
	r.checkPreamble()
	for _, p := range r.patterns {
		r.closure(p)
	}
	r.checkSharedClaims()
	r.checkOrphanedHelpers(sig)
	sort.Strings(r.reasons)
	return r.reasons
}

func (r *resolver) reason(format string, args ...any) {
	r.reasons = append(r.reasons, fmt.Sprintf(format, args...))
}

// checkPreamble rejects shared context that leans on per-pattern state:
// preamble is duplicated into every unit, so it may only depend on other
// preamble.
func (r *resolver) checkPreamble() {
	for _, s := range r.a.stmts {
		if s.class != classPreamble {
			continue
		}
		for name := range s.uses {
			if len(r.helperByName[name]) > 0 {
				r.reason("line %d: shared statement depends on helper '%s'", line(s), name)
			}
		}
		for name := range s.defs {
			if len(r.helperByName[name]) > 0 {
				r.reason("line %d: shared statement rebinds helper '%s'", line(s), name)
			}
		}
		for col := range s.colReads {
			if r.a.patternCols[col] {
				r.reason("line %d: shared statement reads pattern output '%s'", line(s), col)
			}
		}
	}
}

// closure claims, transitively, every helper statement a pattern needs.
func (r *resolver) closure(p *pattern) {
	seenNames := make(map[string]bool)
	seenCols := make(map[string]bool)
	var nameQueue, colQueue []string

	enqueue := func(s *statement) {
		for name := range s.uses {
			if !seenNames[name] {
				seenNames[name] = true
				nameQueue = append(nameQueue, name)
			}
		}
		for col := range s.colReads {
			if !seenCols[col] {
				seenCols[col] = true
				colQueue = append(colQueue, col)
			}
		}
	}
	claim := func(s *statement) {
		if p.claimed[s.idx] {
			return
		}
		p.claimed[s.idx] = true
		if r.claims[s.idx] == nil {
			r.claims[s.idx] = make(map[string]bool)
		}
		r.claims[s.idx][p.column] = true
		enqueue(s)
	}

	for _, s := range p.stmts {
		enqueue(s)
	}
	for len(nameQueue) > 0 || len(colQueue) > 0 {
		if len(nameQueue) > 0 {
			name := nameQueue[0]
			nameQueue = nameQueue[1:]
			for _, h := range r.helperByName[name] {
				claim(h)
			}
			continue
		}
		col := colQueue[0]
		colQueue = colQueue[1:]
		if col == p.column {
			continue
		}
		if r.a.patternCols[col] {
			r.reason("pattern '%s' reads pattern output '%s'", p.column, col)
			continue
		}
		for _, h := range r.helperByCol[col] {
			claim(h)
		}
	}
}

// checkSharedClaims flags helpers pulled into more than one closure.
func (r *resolver) checkSharedClaims() {
	for idx, owners := range r.claims {
		if len(owners) < 2 {
			continue
		}
		names := make([]string, 0, len(owners))
		for col := range owners {
			names = append(names, col)
		}
		sort.Strings(names)
		r.reason("line %d: helper shared by patterns %s", line(r.a.stmts[idx]), strings.Join(names, ", "))
	}
}

// checkOrphanedHelpers flags helpers no pattern claims when they carry
// parameter bindings: dropping them would silently lose parameters, so the
// file stays whole instead.
func (r *resolver) checkOrphanedHelpers(sig *scanner.Signature) {
	for _, s := range r.a.stmts {
		if s.class != classHelper || len(r.claims[s.idx]) > 0 {
			continue
		}
		span := stmtSpan(s)
		for _, b := range sig.Bindings {
			if b.Span.Valid() && b.Span.Within(span) {
				r.reason("line %d: unclaimed helper carries parameter '%s'", line(s), b.Name)
				break
			}
		}
	}
}

// buildUnits assembles each pattern's code (preamble + claimed helpers +
// pattern statements, in original order) and assigns it the bindings whose
// spans fall inside its statements. Bindings in shared preamble are
// duplicated by value into every unit.
func buildUnits(a *analyzer, patterns []*pattern, sig *scanner.Signature) []scanner.ScannerUnit {
	units := make([]scanner.ScannerUnit, 0, len(patterns))
	for _, p := range patterns {
		include := make(map[int]bool)
		for _, s := range a.stmts {
			if s.class == classPreamble {
				include[s.idx] = true
			}
		}
		for idx := range p.claimed {
			include[idx] = true
		}
		for _, s := range p.stmts {
			include[s.idx] = true
		}

		idxs := make([]int, 0, len(include))
		for idx := range include {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)

		var parts []string
		var spans []scanner.Span
		for _, idx := range idxs {
			s := a.stmts[idx]
			spans = append(spans, stmtSpan(s))
			parts = append(parts, a.tree.Text(s.node))
		}

		var bindings []scanner.ParameterBinding
		for _, b := range sig.Bindings {
			if !b.Span.Valid() {
				continue
			}
			for _, span := range spans {
				if b.Span.Within(span) {
					bindings = append(bindings, b)
					break
				}
			}
		}

		units = append(units, scanner.ScannerUnit{
			Name:     p.column,
			Code:     strings.Join(parts, "\n") + "\n",
			Bindings: bindings,
		})
	}
	return units
}

func stmtSpan(s *statement) scanner.Span {
	return scanner.Span{Start: int(s.node.StartByte()), End: int(s.node.EndByte())}
}

func line(s *statement) int {
	return int(s.node.StartPoint().Row) + 1
}
