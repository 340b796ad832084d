package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/enrich"
	"scantuner/internal/pipeline"
	"scantuner/internal/watch"
)

var runWatch bool

// runCmd drives the full pipeline over many files
var runCmd = &cobra.Command{
	Use:   "run [path]...",
	Short: "Run the full pipeline over scanner files",
	Long: `Drives every named file, and every .py file under named directories,
through the whole pipeline: extract, enrich when configured, split,
transform, verify. Files are processed concurrently and summarized per
file; the command exits non-zero if any file fails to parse or verify.

With --watch the command keeps running and reprocesses a file whenever it
changes on disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run files when they change")
}

// newRunner assembles a pipeline runner from the loaded configuration.
func newRunner() *pipeline.Runner {
	runner := &pipeline.Runner{
		Mapping:     cfg.Transform.Mapping,
		Concurrency: cfg.Pipeline.Concurrency,
		Logger:      logger,
	}
	if cfg.Enrichment.Enabled() {
		client := enrich.NewOpenAIClient(cfg.Enrichment.APIKey, cfg.Enrichment.Model, cfg.Enrichment.BaseURL)
		enricher := enrich.New(client)
		enricher.Threshold = cfg.Enrichment.Threshold
		enricher.Timeout = cfg.Enrichment.Timeout
		enricher.Logger = logger
		runner.Enricher = enricher
		logger.Debug("enrichment enabled", zap.String("model", cfg.Enrichment.Model))
	}
	return runner
}

func runPipeline(cmd *cobra.Command, args []string) error {
	src, err := collectSources(args)
	if err != nil {
		return err
	}
	if len(src.files) == 0 && !runWatch {
		return fmt.Errorf("no Python sources found under %s", strings.Join(args, ", "))
	}

	files := make([]pipeline.File, 0, len(src.files))
	for _, path := range src.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, pipeline.File{Name: path, Source: string(data)})
	}

	runner := newRunner()
	out := cmd.OutOrStdout()

	if len(files) > 0 {
		batch := runner.Batch(context.Background(), files)
		if jsonOut {
			if err := renderJSON(out, newBatchView(batch)); err != nil {
				return err
			}
		} else {
			renderBatch(out, batch)
		}
		if !runWatch {
			return batchErr(batch)
		}
	}

	return watchLoop(cmd, runner, src)
}

// watchLoop blocks until interrupted, reprocessing files as the watcher
// reports settled changes.
func watchLoop(cmd *cobra.Command, runner *pipeline.Runner, src *sourceSet) error {
	out := cmd.OutOrStdout()
	handler := func(path string) {
		if !src.accepts(path) {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping changed file", zap.String("path", path), zap.Error(err))
			return
		}
		res := runner.Run(context.Background(), path, string(data))
		if jsonOut {
			_ = renderJSON(out, newFileView(res))
			return
		}
		renderFileLine(out, res)
	}

	w, err := watch.New(src.watchDirs(), 0, handler, logger)
	if err != nil {
		return err
	}
	if err := w.Start(context.Background()); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (Ctrl+C to stop)\n", strings.Join(src.watchDirs(), ", "))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down watcher")
	return nil
}

// sourceSet is the resolved view of the run command's path arguments.
type sourceSet struct {
	files    []string            // initial .py files, absolute paths
	dirs     []string            // directory arguments, absolute paths
	explicit map[string]struct{} // files named directly on the command line
}

func collectSources(args []string) (*sourceSet, error) {
	src := &sourceSet{explicit: make(map[string]struct{})}
	seen := make(map[string]struct{})
	addFile := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			src.files = append(src.files, p)
		}
	}

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			addFile(path)
			src.explicit[path] = struct{}{}
			continue
		}
		src.dirs = append(src.dirs, path)
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".py") {
				addFile(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return src, nil
}

// watchDirs lists every directory the watcher must register: directory
// arguments first, then each directory holding a collected file. fsnotify
// watches are not recursive, so nested files register their own parents.
func (s *sourceSet) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(d string) {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			dirs = append(dirs, d)
		}
	}
	for _, d := range s.dirs {
		add(d)
	}
	for _, f := range s.files {
		add(filepath.Dir(f))
	}
	return dirs
}

// accepts reports whether a changed path belongs to this run: a file
// named directly, or any Python file under a directory argument.
func (s *sourceSet) accepts(path string) bool {
	if _, ok := s.explicit[path]; ok {
		return true
	}
	for _, dir := range s.dirs {
		if strings.HasPrefix(path, dir+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// batchErr turns failed files into a non-zero exit.
func batchErr(batch pipeline.BatchResult) error {
	failed := 0
	for i := range batch.Files {
		if !batch.Files[i].Verified() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(batch.Files))
	}
	return nil
}
