package editorconn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenizeAll(t *testing.T, s string) []string {
	t.Helper()
	tok := NewTokenizer(bytes.NewReader([]byte(s)))
	var tokens []string
	for {
		tk, err := tok.Next()
		if err == ErrEndOfRequest {
			break
		}
		require.NoError(t, err)
		tokens = append(tokens, tk)
	}
	return tokens
}

func TestTokenizerPlainWhitespace(t *testing.T) {
	tokens := tokenizeAll(t, "alpha beta  gamma\n")
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, tokens)
}

func TestTokenizerBackslashEscape(t *testing.T) {
	tokens := tokenizeAll(t, `a\ b c\\d`+"\n")
	// `a\ b` -> "a b" as one token (space escaped), `c\\d` -> "c\d" as one token
	assert.Equal(t, []string{"a b", `c\d`}, tokens)
}

func TestTokenizerSingleQuotedRun(t *testing.T) {
	tokens := tokenizeAll(t, "'it''s fine' next\n")
	assert.Equal(t, []string{"it's fine", "next"}, tokens)
}

func TestTokenizerQuotedThenUnquotedSuffix(t *testing.T) {
	tokens := tokenizeAll(t, "'abc'def ghi\n")
	assert.Equal(t, []string{"abcdef", "ghi"}, tokens)
}

func TestTokenizerEmptyRequestLine(t *testing.T) {
	tok := NewTokenizer(bytes.NewReader([]byte("\n")))
	_, err := tok.Next()
	assert.Equal(t, ErrEndOfRequest, err)
}
