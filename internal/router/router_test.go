package router

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/kak-lsp-bridge/internal/config"
	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
)

func TestResolveRejectsRelativeBuffile(t *testing.T) {
	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) { return 1, nil },
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	_, err := r.Resolve("gopls", config.ServerConfig{}, "relative/path.go", false, nil)
	assert.ErrorIs(t, err, ErrNotAbsolute)
}

func TestResolveAllowsRelativeBuffileForHookRequest(t *testing.T) {
	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) { return 1, nil },
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	inst, err := r.Resolve("gopls", config.ServerConfig{Root: "/proj"}, "relative/path.go", true, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.ServerID(1), inst.ID)
}

func TestResolveReusesInstanceForSameNameAndRoot(t *testing.T) {
	calls := 0
	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) {
			calls++
			return docstore.ServerID(calls), nil
		},
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	cfg := config.ServerConfig{Root: "/proj"}
	a, err := r.Resolve("gopls", cfg, "/proj/main.go", false, nil)
	require.NoError(t, err)
	b, err := r.Resolve("gopls", cfg, "/proj/other.go", false, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, calls)
}

func TestResolveFoldsIntoWorkspaceFoldersCapableInstance(t *testing.T) {
	spawned := 0
	var folded []string
	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) {
			spawned++
			return docstore.ServerID(spawned), nil
		},
		func(docstore.ServerID) bool { return true },
		func(id docstore.ServerID, root string) { folded = append(folded, root) },
	)
	_, err := r.Resolve("gopls", config.ServerConfig{Root: "/proj-a"}, "/proj-a/main.go", false, nil)
	require.NoError(t, err)
	_, err = r.Resolve("gopls", config.ServerConfig{Root: "/proj-b"}, "/proj-b/main.go", false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, spawned)
	assert.Equal(t, []string{"/proj-b"}, folded)
}

func TestResolveTombstonesFailedSpawn(t *testing.T) {
	wantErr := errors.New("boom")
	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) { return 0, wantErr },
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	cfg := config.ServerConfig{Root: "/proj"}
	_, err := r.Resolve("gopls", cfg, "/proj/main.go", false, nil)
	assert.Error(t, err)

	_, err = r.Resolve("gopls", cfg, "/proj/main.go", false, nil)
	assert.ErrorIs(t, err, ErrTombstoned)
}

func TestResolveForwardsInitOptionsToSpawn(t *testing.T) {
	var got map[string]any
	r := New(
		func(_ string, _ config.ServerConfig, _ string, initOptions map[string]any) (docstore.ServerID, error) {
			got = initOptions
			return 1, nil
		},
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	override := map[string]any{"flag": true}
	_, err := r.Resolve("gopls", config.ServerConfig{Root: "/proj"}, "/proj/main.go", false, override)
	require.NoError(t, err)
	assert.Equal(t, override, got)
}

func TestResolveRootGlobsWalkUpward(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/go.mod", []byte("module x\n"), 0644))
	require.NoError(t, os.MkdirAll(dir+"/pkg", 0755))

	r := New(
		func(string, config.ServerConfig, string, map[string]any) (docstore.ServerID, error) { return 1, nil },
		func(docstore.ServerID) bool { return false },
		func(docstore.ServerID, string) {},
	)
	cfg := config.ServerConfig{RootGlobs: []string{"go.mod"}}
	inst, err := r.Resolve("gopls", cfg, dir+"/pkg/main.go", false, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, inst.Root)
}
