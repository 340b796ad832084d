package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"scantuner/internal/pipeline"
	"scantuner/internal/scanner"
	"scantuner/internal/split"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderSignature prints one signature as a table, one row per binding.
func renderSignature(w io.Writer, name string, sig *scanner.Signature) {
	fmt.Fprintf(w, "%s: %d parameter(s), signature %s\n", name, sig.Len(), sig.ShortHash())
	if sig.Len() == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Value", "Kind", "Span", "Origin", "Confidence"})
	for i, b := range sig.Bindings {
		span := "-"
		if b.Span.Valid() {
			span = fmt.Sprintf("%d:%d", b.Span.Start, b.Span.End)
		}
		t.AppendRow(table.Row{
			i + 1, b.Name, b.Value.String(), b.Value.Kind.String(),
			span, string(b.Origin), fmt.Sprintf("%.2f", b.Confidence),
		})
	}
	t.Render()
}

// renderReport prints a verification outcome with its differences.
func renderReport(w io.Writer, report scanner.VerificationReport) {
	if report.Verified {
		fmt.Fprintf(w, "verified: %d parameter(s), signature %s\n",
			report.Original.Len(), report.Original.ShortHash())
		return
	}
	fmt.Fprintf(w, "verification FAILED: original %s, transformed %s\n",
		report.Original.ShortHash(), report.Transformed.ShortHash())
	for _, d := range report.Differences {
		fmt.Fprintf(w, "  - %s\n", d)
	}
}

// renderBatch prints the per-file summary table for one batch run.
func renderBatch(w io.Writer, batch pipeline.BatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "State", "Units", "Params", "Signature", "Status"})

	verified := 0
	for i := range batch.Files {
		fr := &batch.Files[i]
		status := "verified"
		switch {
		case fr.Err != nil:
			status = fmt.Sprintf("error: %v", fr.Err)
		case !fr.Verified():
			status = "FAILED"
		default:
			verified++
		}
		t.AppendRow(table.Row{
			fr.Name, string(fr.State), len(fr.Units), fr.Signature.Len(),
			fr.Signature.ShortHash(), status,
		})
	}
	t.Render()
	fmt.Fprintf(w, "run %s: %d file(s), %d verified\n",
		batch.RunID[:8], len(batch.Files), verified)

	for i := range batch.Files {
		for _, msg := range batch.Files[i].Warnings {
			fmt.Fprintf(w, "  %s: %s\n", batch.Files[i].Name, msg)
		}
	}
}

// renderFileLine prints a one-line result, used by watch mode where a
// table per change would drown the terminal.
func renderFileLine(w io.Writer, res pipeline.FileResult) {
	if res.Err != nil {
		fmt.Fprintf(w, "%s: error: %v\n", res.Name, res.Err)
		return
	}
	status := "verified"
	if !res.Verified() {
		status = "verification FAILED"
	}
	fmt.Fprintf(w, "%s: %s, %d unit(s), %d parameter(s), signature %s [%s]\n",
		res.Name, string(res.State), len(res.Units), res.Signature.Len(),
		res.Signature.ShortHash(), status)
	for _, msg := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", msg)
	}
}

// JSON view types. FileResult carries an error value, which does not
// survive encoding/json, so results are flattened into plain structs.

type transformView struct {
	Transform scanner.TransformResult    `json:"transform"`
	Report    scanner.VerificationReport `json:"report"`
}

type splitUnitView struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Parameters []string `json:"parameters"`
}

type splitResultView struct {
	Ambiguous bool            `json:"ambiguous"`
	Reasons   []string        `json:"reasons,omitempty"`
	Units     []splitUnitView `json:"units"`
}

func splitView(res *split.Result, written []string) splitResultView {
	view := splitResultView{Ambiguous: res.Ambiguous, Reasons: res.Reasons}
	for i, u := range res.Units {
		names := make([]string, len(u.Bindings))
		for j, b := range u.Bindings {
			names[j] = b.Name
		}
		view.Units = append(view.Units, splitUnitView{Name: u.Name, File: written[i], Parameters: names})
	}
	return view
}

type unitView struct {
	Name        string            `json:"name"`
	Verified    bool              `json:"verified"`
	Signature   scanner.Signature `json:"signature"`
	Differences []string          `json:"differences,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

type fileView struct {
	Name           string             `json:"name"`
	State          pipeline.State     `json:"state"`
	Trail          []pipeline.State   `json:"trail"`
	Verified       bool               `json:"verified"`
	Signature      *scanner.Signature `json:"signature,omitempty"`
	Units          []unitView         `json:"units,omitempty"`
	UsedFallback   bool               `json:"used_fallback,omitempty"`
	SplitAmbiguous bool               `json:"split_ambiguous,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	Error          string             `json:"error,omitempty"`
}

type runView struct {
	RunID string     `json:"run_id"`
	Files []fileView `json:"files"`
}

func newFileView(fr pipeline.FileResult) fileView {
	view := fileView{
		Name:           fr.Name,
		State:          fr.State,
		Trail:          fr.Trail,
		Verified:       fr.Verified(),
		UsedFallback:   fr.UsedFallback,
		SplitAmbiguous: fr.SplitAmbiguous,
		Warnings:       fr.Warnings,
	}
	if fr.Err != nil {
		view.Error = fr.Err.Error()
		return view
	}
	sig := fr.Signature
	view.Signature = &sig
	for _, u := range fr.Units {
		view.Units = append(view.Units, unitView{
			Name:        u.Unit.Name,
			Verified:    u.Report.Verified,
			Signature:   u.Transform.Signature,
			Differences: u.Report.Differences,
			Warnings:    u.Transform.Warnings,
		})
	}
	return view
}

func newBatchView(batch pipeline.BatchResult) runView {
	view := runView{RunID: batch.RunID}
	for _, fr := range batch.Files {
		view.Files = append(view.Files, newFileView(fr))
	}
	return view
}
