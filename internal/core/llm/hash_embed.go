package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/markdave123-py/docsift/internal/core"
)

// HashEmbedder is a deterministic local embedder based on signed feature
// hashing of words and word trigrams. It needs no network access and is used
// when no model API key is configured.
type HashEmbedder struct {
	dim int
}

var _ core.EmbeddingProvider = (*HashEmbedder)(nil)

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h.add(v, "w:"+w, 1)
		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, "g:"+string(runes[i:i+3]), 0.5)
		}
	}
	normalize(v)
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
