// Package pipeline drives one source file through the full
// extract -> enrich -> split -> transform -> verify sequence and runs
// batches of files concurrently. Every stage except enrichment is pure and
// synchronous; enrichment is the only suspend point and is bounded by its
// own timeout. A file's failures accumulate on its own result and never
// disturb other files in the same batch.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scantuner/internal/enrich"
	"scantuner/internal/extract"
	"scantuner/internal/rewrite"
	"scantuner/internal/scanner"
	"scantuner/internal/split"
	"scantuner/internal/verify"
)

// State names one station of the per-file state machine.
type State string

const (
	// StateIngested is entered once when the file arrives. A parse failure
	// leaves the file here.
	StateIngested State = "ingested"
	// StateExtracted means structural extraction produced a signature.
	StateExtracted State = "extracted"
	// StateSplit and StateUnsplit record whether the source divided into
	// multiple units.
	StateSplit   State = "split"
	StateUnsplit State = "unsplit"
	// StateTransformed means every unit has been rewritten.
	StateTransformed State = "transformed"
	// StateVerified / StateUnverified record the final integrity outcome.
	StateVerified   State = "verified"
	StateUnverified State = "unverified"
)

const defaultConcurrency = 4

// File is one named source handed to the runner.
type File struct {
	Name   string
	Source string
}

// UnitResult is the transform and verification outcome for one scanner
// unit of a file.
type UnitResult struct {
	Unit      scanner.ScannerUnit
	Transform scanner.TransformResult
	Report    scanner.VerificationReport
}

// FileResult is everything the pipeline produced for one file. Err is set
// only for the fatal case (unparseable source); every other problem lands
// in Warnings and the partial results stay usable.
type FileResult struct {
	Name  string
	State State
	// Trail records every state the file passed through, in order.
	Trail []State
	// Signature is the file-level parameter set: structural bindings plus
	// any enriched additions.
	Signature      scanner.Signature
	Units          []UnitResult
	UsedFallback   bool
	SplitAmbiguous bool
	Warnings       []string
	Err            error
}

// Verified reports whether every unit of the file passed verification.
func (fr *FileResult) Verified() bool {
	if fr.Err != nil || len(fr.Units) == 0 {
		return false
	}
	for _, u := range fr.Units {
		if !u.Report.Verified {
			return false
		}
	}
	return true
}

func (fr *FileResult) advance(s State) {
	fr.State = s
	fr.Trail = append(fr.Trail, s)
}

// BatchResult collects per-file results of one batch run. Files holds one
// entry per input, in input order.
type BatchResult struct {
	RunID string
	Files []FileResult
}

// Runner executes pipelines. The zero value works: no enrichment, default
// mapping, default concurrency, no logging.
type Runner struct {
	// Enricher proposes extra parameters for thin signatures. Nil disables
	// enrichment entirely.
	Enricher *enrich.Enricher
	// Mapping is the lookup identifier spliced into rewrites.
	// rewrite.DefaultMapping when empty.
	Mapping string
	// Concurrency caps parallel files in Batch. defaultConcurrency when
	// < 1.
	Concurrency int
	Logger      *zap.Logger
}

// Run drives one file through the machine. The returned result is always
// complete up to the state reached.
func (r *Runner) Run(ctx context.Context, name, source string) FileResult {
	res := FileResult{Name: name}
	res.advance(StateIngested)
	log := r.logger().With(zap.String("file", name))

	sig, err := extract.Extract(source)
	if err != nil {
		res.Err = err
		log.Warn("extraction failed", zap.Error(err))
		return res
	}
	res.advance(StateExtracted)
	log.Debug("extracted", zap.Int("bindings", sig.Len()), zap.String("hash", sig.ShortHash()))

	var extras []scanner.ParameterBinding
	if r.Enricher != nil && r.Enricher.Needed(sig.Bindings) {
		er := r.Enricher.Enrich(ctx, source, sig.Bindings)
		res.UsedFallback = er.UsedFallback
		if er.UsedFallback {
			res.Warnings = append(res.Warnings, "enrichment unavailable, continuing with structural parameters")
		}
		extras = er.Bindings
	}
	res.Signature = enrich.Merge(sig, extras)

	sr, err := split.Split(source)
	if err != nil {
		// Source parsed a moment ago; reaching this means it changed under
		// us or the splitter broke. Degrade to one whole-file unit.
		res.Warnings = append(res.Warnings, fmt.Sprintf("split failed: %v", err))
		sr = &split.Result{Units: []scanner.ScannerUnit{{
			Name:     split.FallbackUnitName,
			Code:     source,
			Bindings: sig.Bindings,
		}}}
	}
	if sr.Ambiguous {
		res.SplitAmbiguous = true
		for _, reason := range sr.Reasons {
			res.Warnings = append(res.Warnings, "split ambiguous: "+reason)
		}
	}
	if len(sr.Units) > 1 {
		res.advance(StateSplit)
	} else {
		res.advance(StateUnsplit)
	}

	single := len(sr.Units) == 1
	verified := true
	for _, u := range sr.Units {
		ur := UnitResult{Unit: u}
		usig, uerr := extract.Extract(u.Code)
		if uerr != nil {
			res.Warnings = append(res.Warnings, unitWarning(single, u.Name, fmt.Sprintf("unit does not parse standalone: %v", uerr)))
			res.Units = append(res.Units, ur)
			verified = false
			continue
		}
		tsig := *usig
		if single && len(extras) > 0 {
			// Enriched bindings are file-scoped; they join the transform
			// signature only when the file is one unit. Split units keep
			// structural bindings only, since a spanless proposal cannot
			// be attributed to one pattern.
			tsig = enrich.Merge(usig, extras)
		}
		ur.Transform = rewrite.Transform(u.Code, &tsig, rewrite.Options{Mapping: r.Mapping})
		for _, w := range ur.Transform.Warnings {
			res.Warnings = append(res.Warnings, unitWarning(single, u.Name, w))
		}
		ur.Report = verify.Verify(u.Code, ur.Transform.TransformedSource)
		if !ur.Report.Verified {
			verified = false
			res.Warnings = append(res.Warnings, unitWarning(single, u.Name,
				"verification failed: "+strings.Join(ur.Report.Differences, "; ")))
		}
		res.Units = append(res.Units, ur)
	}
	res.advance(StateTransformed)

	if verified {
		res.advance(StateVerified)
	} else {
		res.advance(StateUnverified)
	}
	log.Debug("pipeline finished",
		zap.String("state", string(res.State)),
		zap.Int("units", len(res.Units)),
		zap.Int("warnings", len(res.Warnings)))
	return res
}

// Batch runs every file through Run with bounded parallelism. Results come
// back in input order; one file's parse failure or cancellation never
// unwinds another file's result.
func (r *Runner) Batch(ctx context.Context, files []File) BatchResult {
	runID := uuid.NewString()
	limit := r.Concurrency
	if limit < 1 {
		limit = defaultConcurrency
	}
	log := r.logger().With(zap.String("run", runID[:8]))
	log.Info("batch starting", zap.Int("files", len(files)), zap.Int("concurrency", limit))

	results := make([]FileResult, len(files))
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		eg.Go(func() error {
			results[i] = r.Run(ctx, f.Name, f.Source)
			return nil
		})
	}
	_ = eg.Wait()

	verified := 0
	failed := 0
	for i := range results {
		if results[i].Verified() {
			verified++
		}
		if results[i].Err != nil {
			failed++
		}
	}
	log.Info("batch complete",
		zap.Int("files", len(files)),
		zap.Int("verified", verified),
		zap.Int("failed", failed))
	return BatchResult{RunID: runID, Files: results}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func unitWarning(single bool, unit, w string) string {
	if single {
		return w
	}
	return unit + ": " + w
}
