package retrieval

import (
	"context"
	"strings"
)

// ChatRequest selects the material for one chat turn.
type ChatRequest struct {
	Query           string
	DocumentIDs     []string
	InvestigationID string
	MaxItems        int
	Threshold       *float64
}

type ChatContext struct {
	Context       string      `json:"context"`
	Sources       []SourceRef `json:"sources"`
	ChunkCount    int         `json:"chunk_count"`
	TokenEstimate int         `json:"token_estimate"`
}

// BuildChatContext fills the item budget with chunks of the explicitly named
// documents first, then tops it up from a semantic search over the query.
func (b *ContextBuilder) BuildChatContext(ctx context.Context, req ChatRequest) (*ChatContext, error) {
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = b.defaults.MaxChunks
	}

	var parts []*BuiltContext
	if len(req.DocumentIDs) > 0 {
		perDoc := max(maxItems/len(req.DocumentIDs), 1)
		docs, err := b.BuildFromDocumentIDs(ctx, req.DocumentIDs, perDoc)
		if err != nil {
			return nil, err
		}
		parts = append(parts, docs)
	}

	remaining := maxItems
	for _, p := range parts {
		remaining -= len(p.Chunks)
	}
	if remaining > 0 && strings.TrimSpace(req.Query) != "" {
		found, err := b.BuildFromSearch(ctx, req.Query, SearchOptions{
			MaxChunks:       remaining,
			Threshold:       req.Threshold,
			InvestigationID: req.InvestigationID,
		})
		if err != nil {
			return nil, err
		}
		parts = append(parts, found)
	}

	out := &ChatContext{Sources: []SourceRef{}}
	seen := map[string]bool{}
	var blocks []string
	for _, p := range parts {
		for _, ch := range p.Chunks {
			blocks = append(blocks, "["+ch.SourceName+"]\n"+ch.Content)
		}
		for _, s := range p.SourcesUsed {
			if !seen[s.ID] {
				seen[s.ID] = true
				out.Sources = append(out.Sources, s)
			}
		}
		out.ChunkCount += len(p.Chunks)
		out.TokenEstimate += p.TotalTokens
	}
	out.Context = strings.Join(blocks, "\n\n---\n\n")
	return out, nil
}
