package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/split"
)

var splitDir string

// splitCmd carves a multi-pattern scanner into per-pattern files
var splitCmd = &cobra.Command{
	Use:   "split [file]",
	Short: "Split a multi-pattern scanner into single-pattern units",
	Long: `Detects independent scan patterns in one source file and writes each as
a standalone unit: the shared preamble, the helpers only that pattern
uses, and the pattern itself. Each extracted parameter is owned by
exactly one unit.

When ownership cannot be decided cleanly the file is kept whole and every
conflict is listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&splitDir, "dir", "d", "", "Directory for unit files (default: alongside the input)")
}

func runSplit(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	res, err := split.Split(string(data))
	if err != nil {
		return fmt.Errorf("split %s: %w", args[0], err)
	}
	logger.Debug("split complete",
		zap.String("file", args[0]),
		zap.Int("units", len(res.Units)),
		zap.Bool("ambiguous", res.Ambiguous))

	dir := splitDir
	if dir == "" {
		dir = filepath.Dir(args[0])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(args[0]), ".py")
	written := make([]string, len(res.Units))
	for i, u := range res.Units {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.py", base, u.Name))
		if err := os.WriteFile(path, []byte(u.Code), 0o644); err != nil {
			return err
		}
		written[i] = path
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return renderJSON(out, splitView(res, written))
	}

	if res.Ambiguous {
		fmt.Fprintln(out, "split is ambiguous; keeping the file whole:")
		for _, r := range res.Reasons {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Unit", "Parameters", "File"})
	for i, u := range res.Units {
		names := make([]string, len(u.Bindings))
		for j, b := range u.Bindings {
			names[j] = b.Name
		}
		t.AppendRow(table.Row{u.Name, strings.Join(names, ", "), written[i]})
	}
	t.Render()
	return nil
}
