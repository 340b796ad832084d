package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/diff"
	"scantuner/internal/verify"
)

// verifyCmd compares the signatures of an original and a transformed file
var verifyCmd = &cobra.Command{
	Use:   "verify [original] [transformed]",
	Short: "Verify a transformed scanner preserves the parameter set",
	Long: `Re-extracts the parameter signature from both files and compares them.
The transform is intact when both sides hold the same parameters with the
same values in the same order; any divergence is itemized and the command
exits with status 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	orig, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	xf, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	report := verify.Verify(string(orig), string(xf))
	logger.Debug("verification complete",
		zap.String("original", args[0]),
		zap.String("transformed", args[1]),
		zap.Bool("verified", report.Verified))

	if jsonOut {
		if err := renderJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		renderReport(cmd.OutOrStdout(), report)
		if !report.Verified {
			d := diff.Compare(args[0], args[1], string(orig), string(xf))
			fmt.Fprint(cmd.OutOrStdout(), d.Unified())
		}
	}

	if !report.Verified {
		return fmt.Errorf("signatures diverge: %d difference(s)", len(report.Differences))
	}
	return nil
}
