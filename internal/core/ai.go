package core

import "context"

// EmbeddingProvider maps text to fixed-length vectors. EmbedTexts returns one
// vector per input in input order; blank input yields a zero vector.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
