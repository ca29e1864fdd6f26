// Package rope provides a line-indexed text buffer used to back open
// documents and translate between byte, UTF-8 and UTF-16 offsets within a
// line.
package rope

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Buffer is an immutable-per-version snapshot of a document's text, indexed
// by line so that byte/character lookups don't rescan the whole document.
type Buffer struct {
	text  string
	lines []string // line contents, without trailing newline
}

// New builds a Buffer from raw text. Lines are split on '\n'; a trailing
// '\r' on each line is kept as part of the line content (callers doing
// byte-accurate edits care about it), matching how LSP servers see it.
func New(text string) *Buffer {
	lines := strings.Split(text, "\n")
	return &Buffer{text: text, lines: lines}
}

// Text returns the full buffer contents.
func (b *Buffer) Text() string { return b.text }

// LineCount returns the number of lines, counting a trailing empty line
// after a final '\n' as its own line (as split does).
func (b *Buffer) LineCount() int { return len(b.lines) }

// Line returns the content of the zero-based line index, clamped to the
// last line if out of range. Clamping is deliberate: servers
// routinely send out-of-range line indices to mean "end of document".
func (b *Buffer) Line(line int) string {
	if line < 0 {
		line = 0
	}
	if line >= len(b.lines) {
		line = len(b.lines) - 1
	}
	if line < 0 {
		return ""
	}
	return b.lines[line]
}

// ByteOffsetOfLine returns the byte offset of the start of the given
// zero-based line within the full text.
func (b *Buffer) ByteOffsetOfLine(line int) int {
	if line < 0 {
		line = 0
	}
	if line >= len(b.lines) {
		line = len(b.lines)
	}
	offset := 0
	for i := 0; i < line && i < len(b.lines); i++ {
		offset += len(b.lines[i]) + 1 // +1 for the '\n'
	}
	return offset
}

// UTF16Len returns the number of UTF-16 code units that would be used to
// encode s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ByteToUTF16 converts a zero-based byte column within a line into a
// zero-based UTF-16 character column. Out-of-range byte columns clamp to
// end-of-line
func ByteToUTF16(line string, byteCol int) int {
	if byteCol < 0 {
		byteCol = 0
	}
	if byteCol > len(line) {
		byteCol = len(line)
	}
	return UTF16Len(line[:byteCol])
}

// UTF16ToByte converts a zero-based UTF-16 character column within a line
// into a zero-based byte column. Out-of-range character columns clamp to
// end-of-line.
func UTF16ToByte(line string, charCol int) int {
	if charCol <= 0 {
		return 0
	}
	units := 0
	for i, r := range line {
		if units >= charCol {
			return i
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		_ = utf8.RuneLen(r)
	}
	return len(line)
}

// ByteToUTF8Char converts a zero-based byte column into a zero-based UTF-8
// rune (codepoint) column, i.e. a count of runes rather than bytes.
func ByteToUTF8Char(line string, byteCol int) int {
	if byteCol < 0 {
		byteCol = 0
	}
	if byteCol > len(line) {
		byteCol = len(line)
	}
	return utf8.RuneCountInString(line[:byteCol])
}

// UTF8CharToByte is the inverse of ByteToUTF8Char.
func UTF8CharToByte(line string, charCol int) int {
	if charCol <= 0 {
		return 0
	}
	count := 0
	for i := range line {
		if count == charCol {
			return i
		}
		count++
	}
	return len(line)
}

// EncodeUTF16String is used by tests to assert UTF16Len against the
// standard library's transcoding.
func EncodeUTF16String(s string) []uint16 {
	return utf16.Encode([]rune(s))
}
