// Package position converts between Kakoune-style editor coordinates
// (1-based line, 1-based byte column, closed ranges) and LSP coordinates
// (0-based line, 0-based UTF-8/UTF-16 character column, half-open ranges).
package position

import (
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/rope"
)

// Encoding selects which LSP character unit is in use for a server.
type Encoding int

const (
	UTF16 Encoding = iota
	UTF8
)

// EditorPosition is 1-based in both dimensions; Column is a byte offset.
type EditorPosition struct {
	Line   int
	Column int
}

// EndOfLineColumn is the sentinel the editor uses for "rest of the line" /
// "virtual end of line", clamped by the editor itself on use.
const EndOfLineColumn = 1 << 30

// EditorRange is closed: both Start and End are included in the selection.
type EditorRange struct {
	Start EditorPosition
	End   EditorPosition
}

// EditorToLSP converts a single editor position into an LSP position.
func EditorToLSP(buf *rope.Buffer, p EditorPosition, enc Encoding) lsp.Position {
	line := p.Line - 1
	lineText := buf.Line(line)
	byteCol := p.Column - 1
	if byteCol < 0 {
		byteCol = 0
	}
	var charCol int
	if byteCol >= EndOfLineColumn-1 {
		charCol = lenChars(lineText, enc)
	} else if enc == UTF16 {
		charCol = rope.ByteToUTF16(lineText, byteCol)
	} else {
		charCol = rope.ByteToUTF8Char(lineText, byteCol)
	}
	return lsp.Position{Line: uint32(clampNonNeg(line)), Character: uint32(charCol)}
}

// LSPToEditor converts a single LSP position into an editor position.
func LSPToEditor(buf *rope.Buffer, p lsp.Position, enc Encoding) EditorPosition {
	line := clampLine(buf, int(p.Line))
	lineText := buf.Line(line)
	var byteCol int
	if enc == UTF16 {
		byteCol = rope.UTF16ToByte(lineText, int(p.Character))
	} else {
		byteCol = rope.UTF8CharToByte(lineText, int(p.Character))
	}
	return EditorPosition{Line: line + 1, Column: byteCol + 1}
}

// EditorRangeToLSP converts a closed editor range into a half-open LSP
// range, applying the whole-line sentinel rule: an editor end column at
// or past EndOfLineColumn means "through the end of the line".
func EditorRangeToLSP(buf *rope.Buffer, r EditorRange, enc Encoding) lsp.Range {
	start := EditorToLSP(buf, r.Start, enc)
	if r.End.Column >= EndOfLineColumn-1 {
		// Whole-line sentinel: convert to "next line, character 0",
		// matching the LSP full-line-selection convention.
		return lsp.Range{
			Start: start,
			End:   lsp.Position{Line: uint32(r.End.Line), Character: 0},
		}
	}
	end := EditorToLSP(buf, EditorPosition{Line: r.End.Line, Column: r.End.Column + 1}, enc)
	return lsp.Range{Start: start, End: end}
}

// LSPRangeToEditor converts a half-open LSP range into a closed editor
// range, applying the insertion-at-column-0 and whole-line edge cases
// below.
func LSPRangeToEditor(buf *rope.Buffer, r lsp.Range, enc Encoding) EditorRange {
	// Empty range at column 0: select the whole line so an
	// insert-before-selection primitive can prepend without swallowing the
	// previous line's newline.
	if r.Start == r.End && r.Start.Character == 0 {
		line := clampLine(buf, int(r.Start.Line))
		return EditorRange{
			Start: EditorPosition{Line: line + 1, Column: 1},
			End:   EditorPosition{Line: line + 1, Column: EndOfLineColumn},
		}
	}

	start := LSPToEditor(buf, r.Start, enc)

	// Full-line selection: LSP end is {line+1, char:0}.
	if r.End.Character == 0 && int(r.End.Line) == int(r.Start.Line)+1 {
		return EditorRange{
			Start: start,
			End:   EditorPosition{Line: int(r.Start.Line) + 1, Column: EndOfLineColumn},
		}
	}

	end := LSPToEditor(buf, r.End, enc)
	// LSP end is exclusive; step back one character for the closed editor
	// range, staying on the same line unless the range was already empty.
	if end.Column > 1 {
		end.Column--
	} else if end.Line > start.Line {
		end.Line--
		end.Column = EndOfLineColumn
	}
	return EditorRange{Start: start, End: end}
}

// LSPPositionToByteOffset converts an LSP position into a byte offset into
// buf's full text, honoring the same line-clamp and encoding rules as
// LSPToEditor.
func LSPPositionToByteOffset(buf *rope.Buffer, p lsp.Position, enc Encoding) int {
	line := clampLine(buf, int(p.Line))
	lineText := buf.Line(line)
	var byteCol int
	if enc == UTF16 {
		byteCol = rope.UTF16ToByte(lineText, int(p.Character))
	} else {
		byteCol = rope.UTF8CharToByte(lineText, int(p.Character))
	}
	return buf.ByteOffsetOfLine(line) + byteCol
}

func lenChars(s string, enc Encoding) int {
	if enc == UTF16 {
		return rope.UTF16Len(s)
	}
	return rope.ByteToUTF8Char(s, len(s))
}

func clampNonNeg(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampLine(buf *rope.Buffer, line int) int {
	if line < 0 {
		return 0
	}
	if line >= buf.LineCount() {
		return buf.LineCount() - 1
	}
	return line
}
