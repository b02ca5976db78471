package ingestion_engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedChunks embeds texts in fixed-size batches, several in flight at once.
// Each batch writes into its own slice window so out[i] always belongs to
// texts[i] regardless of completion order.
func (s *StorageService) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	dim := s.embedder.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedParallelism)

	for start := 0; start < len(texts); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := s.embedder.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), end-start)
			}
			for k, v := range vecs {
				if len(v) != dim {
					return fmt.Errorf("embedding %d has %d dimensions, want %d", start+k, len(v), dim)
				}
				out[start+k] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
