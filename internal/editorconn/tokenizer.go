// Package editorconn implements the editor-side FIFO protocol: a
// tokenizer over the control FIFO's escaped, whitespace-separated
// request format, plus the buffer-FIFO line-counted read.
package editorconn

import (
	"errors"
)

// byteSource is the minimal interface the tokenizer needs; satisfied by
// both fifo.Reader (non-blocking, retrying) and a plain bytes-backed
// reader in tests.
type byteSource interface {
	ReadByte() (byte, error)
}

// ErrEndOfRequest is returned by Tokenizer.Next once an unescaped,
// unquoted newline has been consumed with no token pending, signalling
// the caller that the current request's tokens are complete.
var ErrEndOfRequest = errors.New("editorconn: end of request")

// Tokenizer reads whitespace-separated tokens from a byte source using
// the editor protocol's escaping rules: `\X` yields literal X; a `'...'`
// run is taken literally except that `''` inside it escapes to a single `'`.
// A one-byte pushback buffer lets the quote scanner hand back a byte it
// over-read while peeking for the `''` escape.
type Tokenizer struct {
	src     byteSource
	pending *byte
}

func NewTokenizer(src byteSource) *Tokenizer {
	return &Tokenizer{src: src}
}

func (t *Tokenizer) readByte() (byte, error) {
	if t.pending != nil {
		b := *t.pending
		t.pending = nil
		return b, nil
	}
	return t.src.ReadByte()
}

func (t *Tokenizer) pushback(b byte) {
	t.pending = &b
}

// Next reads and returns the next token. It returns ("", ErrEndOfRequest)
// when it consumes a newline terminating the current request with no
// token content seen yet, and ("", err) — typically io.EOF — when the
// underlying source is exhausted.
func (t *Tokenizer) Next() (string, error) {
	// Skip separating whitespace, treating a bare newline outside a token
	// as the end-of-request marker.
	for {
		b, err := t.readByte()
		if err != nil {
			return "", err
		}
		switch b {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return "", ErrEndOfRequest
		default:
			return t.readToken(b)
		}
	}
}

func (t *Tokenizer) readToken(first byte) (string, error) {
	var out []byte
	b := first
	for {
		switch b {
		case '\\':
			esc, err := t.readByte()
			if err != nil {
				return string(out), err
			}
			out = append(out, esc)
		case '\'':
			lit, err := t.readQuoted()
			out = append(out, lit...)
			if err != nil {
				return string(out), err
			}
		case ' ', '\t', '\r', '\n':
			if b == '\n' {
				// Newline both ends this token and the request; push it
				// back so the next Next() call observes end-of-request.
				t.pushback('\n')
			}
			return string(out), nil
		default:
			out = append(out, b)
		}

		if b == '\'' {
			// readQuoted already consumed through the closing quote (and
			// possibly pushed back one byte); read the next byte fresh.
		}
		nb, err := t.readByte()
		if err != nil {
			return string(out), nil
		}
		b = nb
	}
}

// readQuoted consumes bytes until an unescaped closing quote, handling the
// `''` -> `'` escape, and returns the literal content (without the
// delimiting quotes). Any byte read past the closing quote that isn't
// part of the escape is pushed back for the caller to reprocess.
func (t *Tokenizer) readQuoted() ([]byte, error) {
	var out []byte
	for {
		b, err := t.readByte()
		if err != nil {
			return out, err
		}
		if b != '\'' {
			out = append(out, b)
			continue
		}
		// Saw a quote: either the closing quote, or `''` escaping to a
		// literal quote. Peek the next byte to disambiguate.
		nb, err := t.readByte()
		if err != nil {
			return out, nil // closing quote was the last byte available
		}
		if nb == '\'' {
			out = append(out, '\'')
			continue
		}
		t.pushback(nb)
		return out, nil
	}
}
