package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultLevel(t *testing.T) {
	log, err := New(Options{})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewVerbose(t *testing.T) {
	log, err := New(Options{Verbose: true})
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{FilePath: path})
	require.NoError(t, err)

	log.Info("pipeline started", zap.String("file", "gap.py"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pipeline started")
	assert.Contains(t, string(data), "gap.py")
}

func TestNewBadFilePathFails(t *testing.T) {
	_, err := New(Options{FilePath: filepath.Join(t.TempDir(), "missing", "run.log")})
	require.Error(t, err)
}
