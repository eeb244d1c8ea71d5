package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "dstgpt.log")

	l, err := New(Options{Level: "debug", FilePath: path})
	require.NoError(t, err)

	l.Info("knowledge source ingested")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "knowledge source ingested")
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Options{Level: "loud", FilePath: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestInit_ReplacesGlobal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Options{FilePath: filepath.Join(dir, "first.log")}))
	first := Get()
	require.NoError(t, Init(Options{Level: "warn", FilePath: filepath.Join(dir, "second.log")}))
	assert.NotSame(t, first, Get())

	Warn("vector store was built with a different embedding model")
	Info("below the configured level")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "second.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "different embedding model")
	assert.NotContains(t, string(data), "below the configured level")
}
