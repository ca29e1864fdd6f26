package editorconn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTokensStopsAtRequestBoundary(t *testing.T) {
	c := &Channel{tok: NewTokenizer(bytes.NewReader([]byte("one two three\nfour\n")))}
	tokens, err := c.readTokens()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, tokens)

	tokens, err = c.readTokens()
	require.NoError(t, err)
	assert.Equal(t, []string{"four"}, tokens)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = parseCount("not-a-number")
	assert.Error(t, err)
}
