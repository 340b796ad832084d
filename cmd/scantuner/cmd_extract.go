package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/extract"
)

// extractCmd prints the structural parameter signature of one source
var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract the parameter signature of a scanner source",
	Long: `Parses a Python scanner and lists every literal threshold compared
against a data field, in source order, together with the signature's
content hash.

Examples:
  scantuner extract gap_scanner.py
  scantuner extract gap_scanner.py --json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	sig, err := extract.Extract(string(data))
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}
	logger.Debug("signature extracted",
		zap.String("file", args[0]),
		zap.Int("parameters", sig.Len()),
		zap.String("hash", sig.ShortHash()))

	if jsonOut {
		return renderJSON(cmd.OutOrStdout(), sig)
	}
	renderSignature(cmd.OutOrStdout(), args[0], sig)
	return nil
}
