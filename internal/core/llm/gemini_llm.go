package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docsift/internal/core"
)

const answerTemperature = 0.2

// ErrNoAnswer is returned when the model produces no text, usually because
// the prompt or the candidate was blocked.
var ErrNoAnswer = errors.New("model returned no answer")

// GeminiLLM answers grounded questions with a Gemini generative model.
type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(answerTemperature)
	if systemPrompt != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrNoAnswer, resp.PromptFeedback.BlockReason)
	}

	answer := candidateText(resp.Candidates)
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}

// candidateText concatenates the text parts of the first usable candidate.
func candidateText(candidates []*genai.Candidate) string {
	for _, c := range candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}
