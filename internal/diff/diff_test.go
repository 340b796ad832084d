package diff

import (
	"strings"
	"testing"
)

func TestCompareSingleRewrite(t *testing.T) {
	oldText := "import pandas as pd\n\nmask = df['gap'] >= 0.5\nhits = df[mask]\n"
	newText := "import pandas as pd\n\nmask = df['gap'] >= params.get('gap_min', 0.5)\nhits = df[mask]\n"

	d := Compare("scanner.py", "scanner.py", oldText, newText)
	if !d.Changed() {
		t.Fatal("expected a change")
	}
	if len(d.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(d.Hunks))
	}

	changed := d.ChangedOldLines()
	if len(changed) != 1 || changed[0] != 3 {
		t.Errorf("expected change on old line 3, got %v", changed)
	}

	hasNew := false
	for _, ln := range d.Hunks[0].Lines {
		if ln.Kind == Added && strings.Contains(ln.Text, "params.get('gap_min', 0.5)") {
			hasNew = true
		}
	}
	if !hasNew {
		t.Error("expected rewritten line in hunk")
	}
}

func TestCompareNoChanges(t *testing.T) {
	text := "mask = df['gap'] >= 0.5\n"
	d := Compare("a.py", "a.py", text, text)
	if d.Changed() {
		t.Errorf("expected no hunks, got %d", len(d.Hunks))
	}
	if d.Unified() != "" {
		t.Error("expected empty unified output for identical content")
	}
}

func TestCompareDistantChangesSplitHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 1; i <= 20; i++ {
		line := "pass  # filler"
		oldLines = append(oldLines, line)
		newLines = append(newLines, line)
	}
	newLines[2] = "mask_a = df['gap'] > 0.5"
	newLines[17] = "mask_b = df['vol'] > 1000000"

	d := Compare("old.py", "new.py", strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	if len(d.Hunks) != 2 {
		t.Fatalf("expected 2 hunks for distant changes, got %d", len(d.Hunks))
	}
}

func TestCompareAdjacentChangesShareHunk(t *testing.T) {
	oldText := "line1\nline2\nline3\nline4\nline5\nline6\nline7\n"
	newText := "line1\nCHANGED2\nline3\nCHANGED4\nline5\nline6\nline7\n"

	d := Compare("old.py", "new.py", oldText, newText)
	if len(d.Hunks) != 1 {
		t.Fatalf("expected adjacent changes to share one hunk, got %d", len(d.Hunks))
	}
}

func TestHunkCounts(t *testing.T) {
	d := Compare("old.py", "new.py", "line1\nline2\nline3\n", "line1\nREWRITTEN\nline3\n")
	if len(d.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(d.Hunks))
	}
	h := d.Hunks[0]

	oldCount, newCount := 0, 0
	for _, ln := range h.Lines {
		if ln.Kind != Added {
			oldCount++
		}
		if ln.Kind != Removed {
			newCount++
		}
	}
	if h.OldCount != oldCount || h.NewCount != newCount {
		t.Errorf("counts mismatch: got -%d,+%d want -%d,+%d", h.OldCount, h.NewCount, oldCount, newCount)
	}
	if h.OldStart != 1 || h.NewStart != 1 {
		t.Errorf("expected hunk to start at line 1, got -%d +%d", h.OldStart, h.NewStart)
	}
}

func TestUnifiedFormat(t *testing.T) {
	d := Compare("orig.py", "xform.py", "a\nb\nc\n", "a\nB\nc\n")
	out := d.Unified()

	for _, want := range []string{"--- orig.py", "+++ xform.py", "@@ -1,3 +1,3 @@", "-b", "+B", " a"} {
		if !strings.Contains(out, want) {
			t.Errorf("unified output missing %q:\n%s", want, out)
		}
	}
}

func TestCompareCaching(t *testing.T) {
	oldText := "mask = df['gap'] > 0.5\n"
	newText := "mask = df['gap'] > params.get('gap_min', 0.5)\n"

	e := NewEngine()
	first := e.Compare("a.py", "a.py", oldText, newText)
	second := e.Compare("b.py", "b.py", oldText, newText)

	if len(first.Hunks) != len(second.Hunks) {
		t.Errorf("cache changed hunk count: %d vs %d", len(first.Hunks), len(second.Hunks))
	}
	if second.OldName != "b.py" || second.NewName != "b.py" {
		t.Error("cached result should carry the caller's names")
	}
}

func BenchmarkCompare(b *testing.B) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, "mask = df['gap'] >= 0.5")
	}
	oldText := strings.Join(lines, "\n")
	lines[250] = "mask = df['gap'] >= params.get('gap_min', 0.5)"
	newText := strings.Join(lines, "\n")

	e := NewEngine()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Compare("old.py", "new.py", oldText, newText)
	}
}
