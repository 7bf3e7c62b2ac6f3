package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default("/repo")

	assert.Equal(t, "/repo", cfg.Root)
	assert.Equal(t, filepath.Join("/repo", ".semsync"), cfg.DataDir)
	assert.Equal(t, 80, cfg.Chunking.WindowLines)
	assert.Equal(t, 60, cfg.Chunking.StrideLines)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.QuietPeriod)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.MaxWait)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root: /repo
embedder:
  provider: ollama
  model: nomic-embed-text
scheduler:
  quiet_period: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/repo", cfg.Root)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 80, cfg.Chunking.WindowLines)
	// MaxWait defaults to 5x the quiet period when unset.
	assert.Equal(t, 5*time.Second, cfg.Scheduler.MaxWait)
	assert.Equal(t, 64, cfg.Embedder.BatchSize)
}

func TestLoadRejectsBadStride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root: /repo
chunking:
  window_lines: 50
  stride_lines: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stride_lines")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  provider: qdrant\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPaths(t *testing.T) {
	cfg := Default("/repo")
	assert.Equal(t, filepath.Join("/repo", ".semsync", "index.db"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("/repo", ".semsync", "fingerprints.json"), cfg.FingerprintPath())
}
