package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "fallback.toml")
	require.NoError(t, os.WriteFile(fallback, []byte(`
[server]
log_level = "debug"

[language_server.rust-analyzer]
command = "rust-analyzer"
root_globs = ["Cargo.toml"]
`), 0644))

	cfg, err := LoadWithFallback(filepath.Join(dir, "missing.toml"), fallback)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "rust-analyzer", cfg.LanguageServers["rust-analyzer"].Command)
	assert.Equal(t, []string{"Cargo.toml"}, cfg.LanguageServers["rust-analyzer"].RootGlobs)
}

func TestLoadWithFallbackNoneValid(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadWithFallback(filepath.Join(dir, "a.toml"), filepath.Join(dir, "b.toml"))
	assert.Error(t, err)
}

func TestDeepMergeNestedKeysSurviveOverride(t *testing.T) {
	base := map[string]any{
		"rust-analyzer": map[string]any{
			"cargo":       map[string]any{"allFeatures": true},
			"checkOnSave": true,
		},
	}
	override := map[string]any{
		"rust-analyzer": map[string]any{
			"cargo": map[string]any{"target": "x86_64"},
		},
	}
	merged := DeepMerge(base, override)
	ra := merged["rust-analyzer"].(map[string]any)
	cargo := ra["cargo"].(map[string]any)
	assert.Equal(t, true, cargo["allFeatures"], "unmentioned nested key must survive the merge")
	assert.Equal(t, "x86_64", cargo["target"])
	assert.Equal(t, true, ra["checkOnSave"])
}

func TestParseTOMLFragmentEmpty(t *testing.T) {
	m, err := ParseTOMLFragment("")
	require.NoError(t, err)
	assert.Empty(t, m)
}
