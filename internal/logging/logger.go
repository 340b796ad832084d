// Package logging builds the process logger shared by every scantuner
// command. Output goes to stderr so transformed source on stdout stays
// pipeable; --log-file redirects it entirely.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// FilePath appends output to a file instead of stderr when set.
	FilePath string
}

// New builds a production-encoded logger per opts.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.FilePath != "" {
		cfg.OutputPaths = []string{opts.FilePath}
		cfg.ErrorOutputPaths = []string{opts.FilePath}
	}
	return cfg.Build()
}
