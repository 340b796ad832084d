package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/extract"
	"scantuner/internal/rewrite"
	"scantuner/internal/verify"
)

var (
	transformOut     string
	transformMapping string
)

// transformCmd externalizes one file's thresholds
var transformCmd = &cobra.Command{
	Use:   "transform [file]",
	Short: "Externalize thresholds into mapping lookups",
	Long: `Rewrites every extracted threshold into a lookup that reads the value
from a runtime mapping, keeping the literal as the default:

  df['volume'] > 1000000   becomes   df['volume'] > params.get('volume_min', 1000000)

No byte outside the replaced literals changes. The result is verified by
re-extraction before the command reports success; a verification failure
exits non-zero.

Without -o the transformed source goes to stdout and the status report to
stderr, so output can be piped.`,
	Args: cobra.ExactArgs(1),
	RunE: runTransform,
}

func init() {
	transformCmd.Flags().StringVarP(&transformOut, "out", "o", "", "Write transformed source to this file (default: stdout)")
	transformCmd.Flags().StringVar(&transformMapping, "mapping", "", "Mapping identifier for lookups (default from config)")
}

func runTransform(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	source := string(data)

	sig, err := extract.Extract(source)
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}

	mapping := transformMapping
	if mapping == "" {
		mapping = cfg.Transform.Mapping
	}
	res := rewrite.Transform(source, sig, rewrite.Options{Mapping: mapping})
	report := verify.Verify(source, res.TransformedSource)
	logger.Debug("transform complete",
		zap.String("file", args[0]),
		zap.Int("parameters", sig.Len()),
		zap.Bool("verified", report.Verified))

	if jsonOut {
		out := transformView{Transform: res, Report: report}
		if err := renderJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !report.Verified {
			return fmt.Errorf("verification failed: %d difference(s)", len(report.Differences))
		}
		return nil
	}

	status := cmd.OutOrStdout()
	if transformOut == "" {
		fmt.Fprint(cmd.OutOrStdout(), res.TransformedSource)
		status = cmd.ErrOrStderr()
	} else {
		if err := os.WriteFile(transformOut, []byte(res.TransformedSource), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(status, "wrote %s\n", transformOut)
	}

	renderReport(status, report)
	for _, w := range res.Warnings {
		fmt.Fprintf(status, "warning: %s\n", w)
	}
	if !report.Verified {
		return fmt.Errorf("verification failed: %d difference(s)", len(report.Differences))
	}
	return nil
}
