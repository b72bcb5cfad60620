package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesIdenticalContent(t *testing.T) {
	content := "# Bylaws\n\nArticle 1\nArticle 2\n"
	result := Lines(content, content)

	assert.Zero(t, result.Additions)
	assert.Zero(t, result.Deletions)
	assert.False(t, result.Changed())
	require.Len(t, result.Lines, 4)
	for _, l := range result.Lines {
		assert.Equal(t, OpUnchanged, l.Op)
	}
}

func TestLinesAgainstEmpty(t *testing.T) {
	result := Lines("", "# Hello\nworld")

	assert.Equal(t, 2, result.Additions)
	assert.Zero(t, result.Deletions)
	assert.Equal(t, []Line{
		{Op: OpAdded, Text: "# Hello", NewNumber: 1},
		{Op: OpAdded, Text: "world", NewNumber: 2},
	}, result.Lines)

	removed := Lines("gone", "")
	assert.Equal(t, 1, removed.Deletions)
	assert.Zero(t, removed.Additions)

	none := Lines("", "")
	assert.False(t, none.Changed())
	assert.Empty(t, none.Lines)
}

func TestLinesChangedLine(t *testing.T) {
	result := Lines("# Hello", "# Hello World")

	assert.Equal(t, 1, result.Additions)
	assert.Equal(t, 1, result.Deletions)
	assert.Equal(t, "- # Hello\n+ # Hello World\n", result.Unified())
}

func TestLinesAppendDoesNotTouchPreviousLastLine(t *testing.T) {
	result := Lines("a\nb", "a\nb\nc")

	assert.Equal(t, 1, result.Additions)
	assert.Zero(t, result.Deletions)
	require.Len(t, result.Lines, 3)
	assert.Equal(t, Line{Op: OpAdded, Text: "c", NewNumber: 3}, result.Lines[2])
}

func TestLinesLineNumbers(t *testing.T) {
	result := Lines("one\ntwo\nthree\n", "one\n2\nthree\nfour\n")

	assert.Equal(t, 2, result.Additions)
	assert.Equal(t, 1, result.Deletions)
	assert.Contains(t, result.Lines, Line{Op: OpRemoved, Text: "two", OldNumber: 2})
	assert.Contains(t, result.Lines, Line{Op: OpAdded, Text: "2", NewNumber: 2})
	assert.Contains(t, result.Lines, Line{Op: OpUnchanged, Text: "three", OldNumber: 3, NewNumber: 3})
	assert.Contains(t, result.Lines, Line{Op: OpAdded, Text: "four", NewNumber: 4})
}
