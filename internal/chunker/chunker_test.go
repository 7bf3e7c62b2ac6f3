package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestChunkEmpty(t *testing.T) {
	c := New(80, 60)
	assert.Nil(t, c.Chunk("a.py", ""))
}

func TestChunkShortFile(t *testing.T) {
	c := New(80, 60)
	chunks := c.Chunk("a.py", genLines(10))

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	assert.Equal(t, "line 1", strings.SplitN(chunks[0].Text, "\n", 2)[0])
}

func TestChunkExactWindow(t *testing.T) {
	c := New(80, 60)
	chunks := c.Chunk("a.py", genLines(80))

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 80, chunks[0].EndLine)
}

func TestChunkOverlappingWindows(t *testing.T) {
	c := New(80, 60)
	chunks := c.Chunk("a.py", genLines(120))

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 80, chunks[0].EndLine)
	assert.Equal(t, 61, chunks[1].StartLine)
	assert.Equal(t, 120, chunks[1].EndLine)
}

func TestChunkFinalShortWindow(t *testing.T) {
	c := New(80, 60)
	chunks := c.Chunk("a.py", genLines(150))

	require.Len(t, chunks, 3)
	assert.Equal(t, 121, chunks[2].StartLine)
	assert.Equal(t, 150, chunks[2].EndLine)
}

func TestChunkEveryLineCovered(t *testing.T) {
	c := New(80, 60)
	total := 333
	chunks := c.Chunk("a.py", genLines(total))

	covered := make(map[int]bool)
	for _, ch := range chunks {
		for l := ch.StartLine; l <= ch.EndLine; l++ {
			covered[l] = true
		}
	}
	for l := 1; l <= total; l++ {
		assert.True(t, covered[l], "line %d not covered", l)
	}
}

func TestChunkIDsDeterministic(t *testing.T) {
	c := New(80, 60)
	first := c.Chunk("pkg/a.py", genLines(200))
	second := c.Chunk("pkg/a.py", genLines(200))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChunkIDDependsOnPathAndStart(t *testing.T) {
	assert.NotEqual(t, ChunkID("a.py", 1), ChunkID("b.py", 1))
	assert.NotEqual(t, ChunkID("a.py", 1), ChunkID("a.py", 61))
	assert.Equal(t, ChunkID("a.py", 61), ChunkID("a.py", 61))
}

func TestChunkBlankLineOnlyYieldsNothing(t *testing.T) {
	c := New(80, 60)

	// A file holding only a newline has one line with no text; there is
	// nothing to embed, so no window is emitted.
	assert.Empty(t, c.Chunk("blank.py", "\n"))
}

func TestChunkBlankLinesKeepText(t *testing.T) {
	c := New(80, 60)
	chunks := c.Chunk("gaps.py", "\n\n\n")

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, "\n\n", chunks[0].Text)
}

func TestChunkNoTrailingNewlinePhantomLine(t *testing.T) {
	c := New(80, 60)
	withNL := c.Chunk("a.py", "one\ntwo\n")
	withoutNL := c.Chunk("a.py", "one\ntwo")

	require.Len(t, withNL, 1)
	require.Len(t, withoutNL, 1)
	assert.Equal(t, 2, withNL[0].EndLine)
	assert.Equal(t, 2, withoutNL[0].EndLine)
}

func TestNewClampsBadStride(t *testing.T) {
	c := New(40, 50)
	assert.Less(t, c.StrideLines(), c.WindowLines())
}
