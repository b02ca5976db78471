package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docsift/internal/core"
)

// maxBatchItems is the request limit of BatchEmbedContents.
const maxBatchItems = 100

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder returns vectors of exactly dim values: model output is
// truncated or padded and renormalised.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimension() int { return g.dim }

func (g *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts sends non-blank texts in batches of up to maxBatchItems; blank
// texts get zero vectors without a request.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []int
	for i, t := range texts {
		if isBlank(t) {
			out[i] = make([]float32, g.dim)
			continue
		}
		pending = append(pending, i)
	}

	em := g.client.EmbeddingModel(g.modelName)
	for start := 0; start < len(pending); start += maxBatchItems {
		end := min(start+maxBatchItems, len(pending))
		idx := pending[start:end]

		batch := em.NewBatch()
		for _, i := range idx {
			batch.AddContent(genai.Text(texts[i]))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != len(idx) {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), len(idx))
		}
		for k, e := range resp.Embeddings {
			if e == nil {
				return nil, fmt.Errorf("gemini batch embed: empty embedding at %d", idx[k])
			}
			out[idx[k]] = fitDimension(e.Values, g.dim)
		}
	}
	return out, nil
}
