package parsing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of characters carried into the next chunk.
	DefaultChunkOverlap = 200
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// ChunkText splits text into sentence-aware chunks labelled {prefix}_{index}.
//
// Sentences are accumulated until the next one would push the buffer past
// size; the buffer is then emitted and the next one is seeded with a tail of
// the emitted buffer. A sentence longer than size is emitted whole.
func ChunkText(text, prefix string, size, overlap int) []TextChunk {
	return accumulate(splitSentences(text), prefix, size, overlap)
}

// ChunkLines behaves like ChunkText but treats every non-blank line as a unit.
// Tabular renderings (sheets, CSV) have no sentence punctuation, so lines are
// their natural boundary.
func ChunkLines(text, prefix string, size, overlap int) []TextChunk {
	var units []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		units = append(units, line+"\n")
	}
	return accumulate(units, prefix, size, overlap)
}

// Reindex rewrites ChunkIndex to the contiguous 0..n-1 sequence.
func Reindex(chunks []TextChunk) {
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
}

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	start := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		out = appendUnit(out, text[start:m[0]+1])
		start = m[1]
	}
	return appendUnit(out, text[start:])
}

func appendUnit(units []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return units
	}
	return append(units, s+" ")
}

func normalizeChunkParams(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}

func accumulate(units []string, prefix string, size, overlap int) []TextChunk {
	size, overlap = normalizeChunkParams(size, overlap)

	var (
		chunks  []TextChunk
		current string
	)
	emit := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, TextChunk{
			Content:    s,
			Source:     fmt.Sprintf("%s_%d", prefix, idx),
			ChunkIndex: idx,
		})
	}

	for _, unit := range units {
		unitLen := utf8.RuneCountInString(unit)
		if current != "" && utf8.RuneCountInString(current)+unitLen > size {
			emit(current)
			// the seeded buffer must stay within size unless the unit alone exceeds it
			budget := overlap
			if room := size - unitLen; room < budget {
				budget = room
			}
			current = overlapTail(current, budget) + unit
			continue
		}
		current += unit
	}
	emit(current)
	return chunks
}

// overlapTail returns at most n trailing characters of text, starting after
// the first space in that tail when there is one.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	tail := string(runes[len(runes)-n:])
	if idx := strings.IndexByte(tail, ' '); idx > 0 {
		return tail[idx+1:]
	}
	return tail
}

// splitUnit keeps a structural unit (page, slide, paragraph) as one chunk
// labelled label, or splits it into label_{k} pieces when it exceeds a
// requested size. Indexes are provisional until Reindex.
func splitUnit(text, label, heading string, page, size, overlap int) []TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []TextChunk{{Content: text, Source: label, Heading: heading, PageNumber: page}}
	}
	chunks := ChunkText(text, label, size, overlap)
	for i := range chunks {
		chunks[i].Heading = heading
		chunks[i].PageNumber = page
	}
	return chunks
}
