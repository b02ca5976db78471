package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/logging"
)

// CachedEmbedder memoises vectors of an inner provider in an expiring LRU.
// Cached slices are shared; callers must not modify returned vectors.
type CachedEmbedder struct {
	inner core.EmbeddingProvider
	cache *expirable.LRU[string, []float32]
}

var _ core.EmbeddingProvider = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner core.EmbeddingProvider, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = 4096
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// EmbedTexts asks the inner provider only for texts not already cached and
// keeps results in input order.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		keys[i] = cacheKey(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for k, i := range missIdx {
		out[i] = vecs[k]
		c.cache.Add(keys[i], vecs[k])
	}
	logging.FromContext(ctx).Debug("embedding cache",
		zap.Int("hits", len(texts)-len(missTexts)), zap.Int("misses", len(missTexts)))
	return out, nil
}

// Len reports the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
