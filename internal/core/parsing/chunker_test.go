package parsing

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence number %d is here.", i)
	}
	return strings.Join(parts, " ")
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", "text", 100, 10))
	assert.Empty(t, ChunkText("   \n\t", "text", 100, 10))
}

func TestChunkTextShortInputIsOneChunk(t *testing.T) {
	chunks := ChunkText("Just one line.", "text", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "text_0", chunks[0].Source)
	assert.Equal(t, "Just one line.", chunks[0].Content)
}

func TestChunkTextRespectsSize(t *testing.T) {
	text := sentences(50)
	chunks := ChunkText(text, "text", 100, 20)
	require.Greater(t, len(chunks), 1)
	requireContiguous(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("text_%d", i), c.Source)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 100)
	}
	joined := strings.Join(func() []string {
		out := make([]string, len(chunks))
		for i, c := range chunks {
			out[i] = c.Content
		}
		return out
	}(), " ")
	for i := 0; i < 50; i++ {
		assert.Contains(t, joined, fmt.Sprintf("Sentence number %d is here.", i))
	}
}

func TestChunkTextCarriesOverlap(t *testing.T) {
	chunks := ChunkText(sentences(10), "text", 60, 30)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "Sentence number 1 is here."))
	// the tail of one chunk reappears at the head of the next
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Sentence number 1 is here."), chunks[1].Content)
}

func TestChunkTextOverlongSentenceEmittedWhole(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunks := ChunkText("Short one. "+long+". Tail.", "text", 100, 10)
	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Content, long) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChunkTextNormalizesOverlap(t *testing.T) {
	chunks := ChunkText(sentences(20), "text", 50, 80)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 50)
	}
}

func TestChunkTextDefaultSize(t *testing.T) {
	chunks := ChunkText(sentences(200), "text", 0, 0)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), DefaultChunkSize)
	}
}

func TestChunkLinesKeepsLinesIntact(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("Row %d: name: item%d, qty: %d", i, i, i*3))
	}
	chunks := ChunkLines(strings.Join(lines, "\n"), "csv_chunk", 120, 0)
	require.Greater(t, len(chunks), 1)
	requireContiguous(t, chunks)
	for _, c := range chunks {
		for _, l := range strings.Split(c.Content, "\n") {
			assert.Contains(t, lines, l)
		}
	}
}

func TestReindex(t *testing.T) {
	chunks := []TextChunk{{ChunkIndex: 4}, {ChunkIndex: 4}, {ChunkIndex: 9}}
	Reindex(chunks)
	requireContiguous(t, chunks)
}

func TestSplitUnit(t *testing.T) {
	single := splitUnit("  Page text.  ", "page_3", "Intro", 3, 100, 10)
	require.Len(t, single, 1)
	assert.Equal(t, TextChunk{Content: "Page text.", Source: "page_3", Heading: "Intro", PageNumber: 3}, single[0])

	many := splitUnit(sentences(20), "page_1", "", 1, 80, 10)
	require.Greater(t, len(many), 1)
	assert.Equal(t, "page_1_0", many[0].Source)
	for _, c := range many {
		assert.Equal(t, 1, c.PageNumber)
	}

	assert.Nil(t, splitUnit("  ", "page_1", "", 1, 80, 10))
}

func TestOverlapTail(t *testing.T) {
	assert.Equal(t, "", overlapTail("anything", 0))
	assert.Equal(t, "short", overlapTail("short", 10))
	assert.Equal(t, "world", overlapTail("hello big world", 8))
}
