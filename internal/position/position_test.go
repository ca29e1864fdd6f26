package position

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/rope"
)

func TestEditorLSPRoundTripUTF16(t *testing.T) {
	buf := rope.New("héllo\nwörld\n")
	for line := 1; line <= 2; line++ {
		text := buf.Line(line - 1)
		for col := 1; col <= len(text)+1; col++ {
			if col <= len(text) && !utf8.RuneStart(text[col-1]) {
				continue // a byte inside a multi-byte rune is not an editor position
			}
			p := EditorPosition{Line: line, Column: col}
			lspPos := EditorToLSP(buf, p, UTF16)
			back := LSPToEditor(buf, lspPos, UTF16)
			assert.Equal(t, p, back, "round trip must hold for line %d col %d", line, col)
		}
	}
}

func TestEditorLSPRoundTripUTF8(t *testing.T) {
	buf := rope.New("abc\ndef\n")
	p := EditorPosition{Line: 1, Column: 2}
	lspPos := EditorToLSP(buf, p, UTF8)
	back := LSPToEditor(buf, lspPos, UTF8)
	assert.Equal(t, p, back)
}

func TestEmptyRangeAtColumnZeroSelectsWholeLine(t *testing.T) {
	buf := rope.New("first\nsecond\nthird")
	r := lsp.Range{Start: lsp.Position{Line: 1, Character: 0}, End: lsp.Position{Line: 1, Character: 0}}
	er := LSPRangeToEditor(buf, r, UTF16)
	assert.Equal(t, EditorPosition{Line: 2, Column: 1}, er.Start)
	assert.Equal(t, EditorPosition{Line: 2, Column: EndOfLineColumn}, er.End)
}

func TestFullLineSelectionConvertsToNextLineColumnZero(t *testing.T) {
	buf := rope.New("first\nsecond\nthird")
	er := EditorRange{
		Start: EditorPosition{Line: 2, Column: 1},
		End:   EditorPosition{Line: 2, Column: EndOfLineColumn},
	}
	r := EditorRangeToLSP(buf, er, UTF16)
	assert.Equal(t, uint32(1), r.Start.Line)
	assert.Equal(t, uint32(0), r.Start.Character)
	assert.Equal(t, uint32(2), r.End.Line)
	assert.Equal(t, uint32(0), r.End.Character)
}

func TestLSPRangeToEditorInverseOfFullLine(t *testing.T) {
	buf := rope.New("first\nsecond\nthird")
	r := lsp.Range{
		Start: lsp.Position{Line: 1, Character: 0},
		End:   lsp.Position{Line: 2, Character: 0},
	}
	// This is also the "empty at column 0" shape only if Start==End; here
	// Start != End so it takes the full-line-selection branch.
	er := LSPRangeToEditor(buf, r, UTF16)
	assert.Equal(t, EditorPosition{Line: 2, Column: 1}, er.Start)
	assert.Equal(t, EditorPosition{Line: 2, Column: EndOfLineColumn}, er.End)
}

func TestOutOfRangeLineClamps(t *testing.T) {
	buf := rope.New("only")
	p := LSPToEditor(buf, lsp.Position{Line: 99, Character: 0}, UTF16)
	assert.Equal(t, 1, p.Line)
}

func TestLSPPositionToByteOffset(t *testing.T) {
	buf := rope.New("abc\ndefgh\nij")
	off := LSPPositionToByteOffset(buf, lsp.Position{Line: 1, Character: 2}, UTF16)
	assert.Equal(t, len("abc\n")+2, off)
}

func TestLSPPositionToByteOffsetUTF16SurrogatePair(t *testing.T) {
	buf := rope.New("a😀b")
	// "😀" is one UTF-16 surrogate pair (2 code units) but 4 UTF-8 bytes.
	off := LSPPositionToByteOffset(buf, lsp.Position{Line: 0, Character: 3}, UTF16)
	assert.Equal(t, len("a😀"), off)
}
