package initializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/position"
)

func TestBuildParamsIncludesPrimaryAndExtraRoots(t *testing.T) {
	params := BuildParams("/proj-a", []string{"/proj-b"}, map[string]any{"k": "v"})
	require.Len(t, params.WorkspaceFolders, 2)
	assert.Equal(t, "file:///proj-a", params.WorkspaceFolders[0].URI)
	assert.Equal(t, "file:///proj-b", params.WorkspaceFolders[1].URI)
	assert.Equal(t, "file:///proj-a", *params.RootURI)
}

func TestNegotiatePrefersAdvertisedEncoding(t *testing.T) {
	tbl := NewTable()
	id := docstore.ServerID(1)
	assert.False(t, tbl.Initialized(id))

	utf8 := lsp.PositionEncodingUTF8
	enc := tbl.Negotiate(id, &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{PositionEncoding: &utf8},
	})

	assert.Equal(t, position.UTF8, enc)
	assert.True(t, tbl.Initialized(id))
	assert.Equal(t, position.UTF8, tbl.Encoding(id))
}

func TestNegotiateDefaultsToUTF16WhenUnspecified(t *testing.T) {
	tbl := NewTable()
	id := docstore.ServerID(2)
	enc := tbl.Negotiate(id, &lsp.InitializeResult{})
	assert.Equal(t, position.UTF16, enc)
	assert.Equal(t, position.UTF16, tbl.Encoding(id))
}

func TestEncodingDefaultsBeforeNegotiation(t *testing.T) {
	tbl := NewTable()
	assert.Equal(t, position.UTF16, tbl.Encoding(docstore.ServerID(99)))
}
