package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scantuner/internal/config"
	"scantuner/internal/logging"
)

var (
	// Global flags
	verbose bool
	cfgFile string
	jsonOut bool
	logFile string

	// Logger and loaded configuration, initialized before any command runs
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scantuner",
	Short: "scantuner - threshold externalization for stock scanner source",
	Long: `scantuner lifts hardcoded thresholds out of Python stock scanners.

It extracts every literal compared against a data field into a named,
ordered parameter signature, rewrites the source so those values are read
from a runtime mapping with the original literal as the default, and
verifies by re-extraction that the rewrite changed nothing else. Files
holding several independent patterns can be split into one unit per
pattern first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Options{Verbose: verbose, FilePath: logFile})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.FileUsed != "" {
			logger.Debug("loaded config file", zap.String("path", cfg.FileUsed))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: scantuner.yaml in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")

	// Add commands to root
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
