package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/position"
	"github.com/rockerboo/kak-lsp-bridge/internal/rope"
)

func TestApplyTextEditsSingleReplace(t *testing.T) {
	buf := rope.New("hello world")
	edits := []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 6}, End: lsp.Position{Line: 0, Character: 11}}, NewText: "there"},
	}
	out := applyTextEdits(buf, edits, position.UTF16)
	assert.Equal(t, "hello there", out)
}

func TestApplyTextEditsMultipleNonOverlappingApplyWithoutOffsetDrift(t *testing.T) {
	buf := rope.New("one two three")
	edits := []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 3}}, NewText: "1"},
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 4}, End: lsp.Position{Line: 0, Character: 7}}, NewText: "2"},
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 8}, End: lsp.Position{Line: 0, Character: 13}}, NewText: "3"},
	}
	out := applyTextEdits(buf, edits, position.UTF16)
	assert.Equal(t, "1 2 3", out)
}

func TestApplyTextEditsInsertionAtEmptyRange(t *testing.T) {
	buf := rope.New("ac")
	edits := []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 1}, End: lsp.Position{Line: 0, Character: 1}}, NewText: "b"},
	}
	out := applyTextEdits(buf, edits, position.UTF16)
	assert.Equal(t, "abc", out)
}

func TestDidChangeParamsCarriesFullTextAndVersion(t *testing.T) {
	doc := &docstore.Document{Path: "/tmp/f.txt", Version: 3, Buffer: rope.New("content")}
	params := didChangeParams(doc.Path, doc)
	assert.Equal(t, int32(3), params.TextDocument.Version)
	assert.Equal(t, "content", params.ContentChanges[0].Text)
}
