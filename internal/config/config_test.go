package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWorkspace(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.EngineOptions().VerifyResult)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	data := `engine:
  verify_result: false
  importer: source
extract:
  accessors: true
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(data), 0o644))

	cfg, err := LoadWorkspace(root)
	require.NoError(t, err)
	assert.False(t, cfg.Engine.VerifyResult)
	assert.Equal(t, analysis.ImporterSource, cfg.EngineOptions().ImporterMode)
	assert.True(t, cfg.Extract.Accessors)
	assert.False(t, cfg.Extract.TopLevel)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("extract:\n  top_level: true\n"), 0o644))

	cfg, err := LoadWorkspace(root)
	require.NoError(t, err)
	assert.True(t, cfg.Engine.VerifyResult)
	assert.Equal(t, analysis.ImporterDefault, cfg.Engine.Importer)
	assert.True(t, cfg.Extract.TopLevel)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"syntax", "engine: [\n"},
		{"importer", "engine:\n  importer: gccgo\n"},
		{"level", "log:\n  level: loud\n"},
		{"format", "log:\n  format: xml\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tc.data), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"

	logger := cfg.NewLogger(&buf, false)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	cfg.NewLogger(&buf, true).Debug("verbose")
	assert.Contains(t, buf.String(), "verbose")

	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
