package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenspec/internal/state"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "screenspec.db", cfg.Storage.Path)
	assert.Equal(t, 20, cfg.Editor.HistoryCapacity)
	assert.Equal(t, state.Style{Color: "#ff0000", StrokeSize: 2}, cfg.Editor.Style())
	assert.Equal(t, state.ToolText, cfg.Editor.DefaultTool())
	assert.Equal(t, 8765, cfg.Share.Port)
	assert.Equal(t, "pdf", cfg.Export.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("SCREENSPEC_TEST_DIR", "/var/lib/screens")
	cfg, err := Parse([]byte(`
storage:
  driver: file
  path: ${SCREENSPEC_TEST_DIR}/data
editor:
  color: "#0F0"
  tool: arrow
export:
  format: html
  author: qa
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/screens/data", cfg.Storage.Path)
	assert.Equal(t, state.Color("#00ff00"), cfg.Editor.Style().Color)
	assert.Equal(t, state.ToolArrow, cfg.Editor.DefaultTool())
	assert.Equal(t, "qa", cfg.Export.Author)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"driver", "storage: {driver: mongo}"},
		{"color", "editor: {color: teal}"},
		{"stroke", "editor: {stroke_size: -1}"},
		{"tool", "editor: {tool: pen}"},
		{"port", "share: {port: 70000}"},
		{"export", "export: {format: docx}"},
		{"logging", "logging: {format: xml}"},
		{"syntax", "storage: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("share: {port: 9000}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Share.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	t.Setenv(EnvPath, path)
	assert.Equal(t, path, Path(""))
	assert.Equal(t, "x.yaml", Path("x.yaml"))
	t.Setenv(EnvPath, "")
	assert.Equal(t, DefaultPath, Path(""))
}
