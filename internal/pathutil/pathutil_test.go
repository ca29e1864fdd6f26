package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAbsolute(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"absolute unix path", "/tmp/a.rs", true},
		{"relative path", "a.rs", false},
		{"empty path", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAbsolute(tt.path))
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := "/tmp/a.rs"
	uri := ToURI(path)
	assert.Equal(t, "file:///tmp/a.rs", uri)

	back, err := FromURI(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)
}

func TestFindRootUpward(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte(""), 0644))

	found, err := FindRootUpward(sub, []string{"Cargo.toml"})
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindRootUpwardNoMatch(t *testing.T) {
	root := t.TempDir()
	found, err := FindRootUpward(root, []string{"nonexistent.marker"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCompileGlobRejectsBraces(t *testing.T) {
	err := CompileGlob("**/*.{toml,json}")
	assert.Error(t, err)
}

func TestCompileGlobAcceptsPlainGlob(t *testing.T) {
	err := CompileGlob("**/*.toml")
	assert.NoError(t, err)
}
