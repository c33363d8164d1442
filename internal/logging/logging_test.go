package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputSplitter_RoutesErrorToStderr(t *testing.T) {
	splitter := OutputSplitter{}

	origStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	defer func() { os.Stderr = origStderr }()

	_, writeErr := splitter.Write([]byte(`time="now" level=error msg="boom"`))
	require.NoError(t, writeErr)
	w.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	assert.Contains(t, buf.String(), "boom")
}

func TestOutputSplitter_RoutesInfoToStdout(t *testing.T) {
	splitter := OutputSplitter{}

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()

	_, writeErr := splitter.Write([]byte(`time="now" level=info msg="ok"`))
	require.NoError(t, writeErr)
	w.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	assert.Contains(t, buf.String(), "ok")
}

func TestLoadYAMLConfig_MissingPathFallsBackToLevel(t *testing.T) {
	cfg, err := LoadYAMLConfig("debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Level)
}

func TestLoadYAMLConfig_EmptyPathDefaultsToInfo(t *testing.T) {
	cfg, err := LoadYAMLConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Level)
}

func TestLoadYAMLConfig_ParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logging.yml")
	require.NoError(t, os.WriteFile(path, []byte("level: warn\njson: true\n"), 0o600))

	cfg, err := LoadYAMLConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Level)
	assert.True(t, cfg.JSON)
}
