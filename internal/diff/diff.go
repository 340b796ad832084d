// Package diff computes line-level differences between an original scanner
// source and its transformed counterpart, built on the sergi/go-diff
// engine. The transform's safety argument leans on it: every changed line
// must intersect a rewritten literal span, and the hunks make that
// checkable (and printable) without re-reading whole files.
package diff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineKind classifies one line of a hunk.
type LineKind int

const (
	Context LineKind = iota
	Added
	Removed
)

// Line is a single diff line. OldNum/NewNum are 1-based; a zero value
// means the line does not exist on that side.
type Line struct {
	Kind   LineKind
	OldNum int
	NewNum int
	Text   string
}

// Hunk is a contiguous group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// SourceDiff is the full comparison of two source versions.
type SourceDiff struct {
	OldName string
	NewName string
	Hunks   []Hunk
}

// Changed reports whether the two versions differ at all.
func (d *SourceDiff) Changed() bool {
	return len(d.Hunks) > 0
}

// ChangedOldLines returns the 1-based original line numbers touched by any
// removal. Rewrite tests use this to pin every change to a literal span.
func (d *SourceDiff) ChangedOldLines() []int {
	var out []int
	for _, h := range d.Hunks {
		for _, ln := range h.Lines {
			if ln.Kind == Removed {
				out = append(out, ln.OldNum)
			}
		}
	}
	return out
}

// Unified renders the diff in unified format for terminal output.
func (d *SourceDiff) Unified() string {
	if !d.Changed() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", d.OldName, d.NewName)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, ln := range h.Lines {
			switch ln.Kind {
			case Added:
				b.WriteByte('+')
			case Removed:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(ln.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// contextLines is the number of unchanged lines kept around each hunk.
const contextLines = 3

// Engine computes diffs with a small cache keyed on content hashes, so
// watch-mode re-runs of unchanged files cost nothing.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine returns an engine tuned for source diffs: the timeout is
// disabled so results are exact, never truncated.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// Default is a shared engine for callers without their own.
var Default = NewEngine()

// Compare is a convenience wrapper over Default.
func Compare(oldName, newName, oldText, newText string) *SourceDiff {
	return Default.Compare(oldName, newName, oldText, newText)
}

// Compare diffs two source versions line by line.
func (e *Engine) Compare(oldName, newName, oldText, newText string) *SourceDiff {
	key := cacheKey{oldHash: fnv64(oldText), newHash: fnv64(newText)}
	if cached, ok := e.cache.Load(key); ok {
		clone := *cached.(*SourceDiff)
		clone.OldName = oldName
		clone.NewName = newName
		return &clone
	}

	// Line-level reduction first, so operations land on line boundaries
	// instead of arbitrary character runs.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldText, newText)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	result := &SourceDiff{
		OldName: oldName,
		NewName: newName,
		Hunks:   groupHunks(toLines(diffs), contextLines),
	}
	e.cache.Store(key, result)
	return result
}

// toLines flattens diff runs into numbered per-line operations.
func toLines(diffs []diffmatchpatch.Diff) []Line {
	var out []Line
	oldNum, newNum := 1, 1
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, text := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, Line{Kind: Context, OldNum: oldNum, NewNum: newNum, Text: text})
				oldNum++
				newNum++
			case diffmatchpatch.DiffDelete:
				out = append(out, Line{Kind: Removed, OldNum: oldNum, Text: text})
				oldNum++
			case diffmatchpatch.DiffInsert:
				out = append(out, Line{Kind: Added, NewNum: newNum, Text: text})
				newNum++
			}
		}
	}
	return out
}

// groupHunks clusters change lines separated by at most 2*context unchanged
// lines into shared hunks, each padded with up to context lines either side.
func groupHunks(lines []Line, context int) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(lines) {
		if lines[i].Kind == Context {
			i++
			continue
		}
		last := i
		j := i + 1
		for j < len(lines) {
			if lines[j].Kind != Context {
				last = j
			} else if j-last > 2*context {
				break
			}
			j++
		}
		start := i - context
		if start < 0 {
			start = 0
		}
		end := last + context
		if end >= len(lines) {
			end = len(lines) - 1
		}
		hunks = append(hunks, buildHunk(lines[start:end+1]))
		i = end + 1
	}
	return hunks
}

func buildHunk(lines []Line) Hunk {
	h := Hunk{Lines: lines}
	for _, ln := range lines {
		if h.OldStart == 0 && ln.OldNum > 0 {
			h.OldStart = ln.OldNum
		}
		if h.NewStart == 0 && ln.NewNum > 0 {
			h.NewStart = ln.NewNum
		}
		if ln.Kind != Added {
			h.OldCount++
		}
		if ln.Kind != Removed {
			h.NewCount++
		}
	}
	return h
}

// fnv64 is FNV-1a over the content, used only as a cache key.
func fnv64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
