package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestCandidateText(t *testing.T) {
	assert.Empty(t, candidateText(nil))

	got := candidateText([]*genai.Candidate{
		nil,
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("The funds "), genai.Text("went to Malta.\n")}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
	})
	assert.Equal(t, "The funds went to Malta.", got)
}
