package coretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/markdave123-py/docsift/internal/core"
)

// MemoryObjects is a core.ObjectClient keyed by bucket/key.
type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte

	UploadErr error
	DeleteErr error
	Deleted   []string
}

var _ core.ObjectClient = (*MemoryObjects)(nil)

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

func (m *MemoryObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return "mem://" + bucket + "/" + key, nil
}

func (m *MemoryObjects) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.objects, bucket+"/"+key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

func (m *MemoryObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryObjects) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := m.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Keys lists stored object keys in sorted order.
func (m *MemoryObjects) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EmbedderFunc adapts a function to core.EmbeddingProvider.
type EmbedderFunc struct {
	Dim int
	Fn  func(ctx context.Context, texts []string) ([][]float32, error)
}

var _ core.EmbeddingProvider = EmbedderFunc{}

func (e EmbedderFunc) Dimension() int { return e.Dim }

func (e EmbedderFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.Fn(ctx, texts)
}

func (e EmbedderFunc) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Fn(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("got %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

// StaticLLM answers every prompt with Answer and records the last prompts.
type StaticLLM struct {
	mu         sync.Mutex
	Answer     string
	Err        error
	System     string
	UserPrompt string
}

var _ core.LLMProvider = (*StaticLLM)(nil)

func (s *StaticLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.System, s.UserPrompt = systemPrompt, userPrompt
	return s.Answer, s.Err
}
