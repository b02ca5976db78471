// Package retrieval assembles ranked, budgeted context from stored chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/logging"
)

const (
	DefaultMaxChunks       = 10
	DefaultThreshold       = 0.5
	DefaultSemanticWeight  = 0.7
	DefaultMaxChunksPerDoc = 20

	charsPerToken = 4
)

// SourceType tags where a context chunk came from.
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceEmail    SourceType = "email"
	SourceSearch   SourceType = "search"
	SourceHybrid   SourceType = "hybrid"
)

// ContextChunk is one retrieved piece of content with its provenance.
// Relevance is nil when the chunk was fetched by id rather than ranked.
type ContextChunk struct {
	Content       string         `json:"content"`
	SourceType    SourceType     `json:"source_type"`
	SourceID      string         `json:"source_id"`
	SourceName    string         `json:"source_name"`
	Relevance     *float64       `json:"relevance_score,omitempty"`
	TokenEstimate int            `json:"token_estimate"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type SourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type BuiltContext struct {
	Chunks      []ContextChunk `json:"chunks"`
	TotalTokens int            `json:"total_tokens_estimate"`
	SourcesUsed []SourceRef    `json:"sources_used"`
}

// Text renders the chunks as "[Source: name] (relevance: x)" blocks joined by
// "\n---\n". A positive maxChars stops before the first block that would
// overflow it; blocks are never split.
func (c *BuiltContext) Text(maxChars int) string {
	var parts []string
	used := 0
	for _, ch := range c.Chunks {
		header := "[Source: " + ch.SourceName + "]"
		if ch.Relevance != nil {
			header += fmt.Sprintf(" (relevance: %.2f)", *ch.Relevance)
		}
		block := header + "\n" + ch.Content + "\n"
		n := utf8.RuneCountInString(block)
		if maxChars > 0 && used+n > maxChars {
			break
		}
		parts = append(parts, block)
		used += n
	}
	return strings.Join(parts, "\n---\n")
}

// SearchOptions overrides the builder defaults for one call. Zero MaxChunks
// and nil pointers take the defaults.
type SearchOptions struct {
	MaxChunks       int
	Threshold       *float64
	SemanticWeight  *float64
	InvestigationID string
}

// Defaults configures a ContextBuilder. A nil Threshold or SemanticWeight
// takes the package default; zero is a valid setting for both.
type Defaults struct {
	MaxChunks       int
	Threshold       *float64
	SemanticWeight  *float64
	MaxChunksPerDoc int
}

// normalized fills every unset or out-of-range field, so the pointers of
// the result are never nil.
func (d Defaults) normalized() Defaults {
	if d.MaxChunks <= 0 {
		d.MaxChunks = DefaultMaxChunks
	}
	d.Threshold = unitOr(d.Threshold, DefaultThreshold)
	d.SemanticWeight = unitOr(d.SemanticWeight, DefaultSemanticWeight)
	if d.MaxChunksPerDoc <= 0 {
		d.MaxChunksPerDoc = DefaultMaxChunksPerDoc
	}
	return d
}

// unitOr returns a copy of v when it lies in [0, 1], otherwise def.
func unitOr(v *float64, def float64) *float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 || *v > 1 {
		return &def
	}
	x := *v
	return &x
}

// ContextBuilder turns search hits or stored chunks into a BuiltContext.
// It never generates text itself.
type ContextBuilder struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	defaults Defaults
}

func NewContextBuilder(db core.DbClient, embedder core.EmbeddingProvider, defaults Defaults) *ContextBuilder {
	return &ContextBuilder{db: db, embedder: embedder, defaults: defaults.normalized()}
}

// Defaults returns the normalized settings; Threshold and SemanticWeight
// are always set.
func (b *ContextBuilder) Defaults() Defaults { return b.defaults }

// EmbedQuery embeds search text with the builder's provider.
func (b *ContextBuilder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := b.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// BuildFromSearch embeds query and ranks chunks by cosine similarity.
func (b *ContextBuilder) BuildFromSearch(ctx context.Context, query string, opts SearchOptions) (*BuiltContext, error) {
	limit := b.limit(opts)
	threshold := *b.defaults.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	vec, err := b.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.SearchChunks(ctx, vec, threshold, limit, opts.InvestigationID)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	out := &BuiltContext{}
	seen := map[string]bool{}
	for _, r := range rows {
		rel := r.Similarity
		kind := SourceDocument
		if r.FileType == "eml" {
			kind = SourceEmail
		}
		out.Chunks = append(out.Chunks, newChunk(r.Content, kind, r.DocumentID, r.Filename, r.Source, &rel, map[string]any{
			"file_type":   r.FileType,
			"heading":     r.Heading,
			"page_number": r.PageNumber,
		}))
		out.addSource(seen, r.DocumentID, r.Filename)
	}

	sortByRelevance(out.Chunks)
	if len(out.Chunks) > limit {
		out.Chunks = out.Chunks[:limit]
	}
	out.TotalTokens = estimateTokens(out.Chunks)

	logging.FromContext(ctx).Debug("context built from search",
		zap.Int("chunks", len(out.Chunks)), zap.Int("sources", len(out.SourcesUsed)))
	return out, nil
}

// BuildFromDocumentIDs returns up to maxPerDoc chunks of each document, in the
// requested document order and stored chunk order. Unknown ids are skipped.
func (b *ContextBuilder) BuildFromDocumentIDs(ctx context.Context, ids []string, maxPerDoc int) (*BuiltContext, error) {
	if maxPerDoc <= 0 {
		maxPerDoc = b.defaults.MaxChunksPerDoc
	}

	out := &BuiltContext{}
	seen := map[string]bool{}
	for _, id := range ids {
		doc, err := b.db.GetDocument(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get document %s: %w", id, err)
		}
		chunks, err := b.db.GetChunks(ctx, id, maxPerDoc)
		if err != nil {
			return nil, fmt.Errorf("get chunks %s: %w", id, err)
		}
		if len(chunks) == 0 {
			continue
		}
		out.addSource(seen, doc.ID, doc.Filename)
		for _, ch := range chunks {
			out.Chunks = append(out.Chunks, newChunk(ch.Content, SourceDocument, doc.ID, doc.Filename, ch.Source, nil, map[string]any{
				"file_type":   doc.FileType,
				"heading":     ch.Heading,
				"page_number": ch.PageNumber,
			}))
		}
	}
	out.TotalTokens = estimateTokens(out.Chunks)
	return out, nil
}

// BuildHybrid blends vector similarity with full-text rank.
func (b *ContextBuilder) BuildHybrid(ctx context.Context, query string, opts SearchOptions) (*BuiltContext, error) {
	limit := b.limit(opts)
	weight := *b.defaults.SemanticWeight
	if opts.SemanticWeight != nil {
		weight = *opts.SemanticWeight
	}

	vec, err := b.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.SearchHybrid(ctx, vec, query, weight, limit, opts.InvestigationID)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	out := &BuiltContext{}
	seen := map[string]bool{}
	for _, r := range rows {
		rel := r.CombinedScore
		out.Chunks = append(out.Chunks, newChunk(r.Content, SourceHybrid, r.DocumentID, r.Filename, r.Source, &rel, map[string]any{
			"semantic_score": r.SemanticScore,
			"text_score":     r.TextScore,
		}))
		out.addSource(seen, r.DocumentID, r.Filename)
	}
	sortByRelevance(out.Chunks)
	if len(out.Chunks) > limit {
		out.Chunks = out.Chunks[:limit]
	}
	out.TotalTokens = estimateTokens(out.Chunks)
	return out, nil
}

func (b *ContextBuilder) limit(opts SearchOptions) int {
	if opts.MaxChunks > 0 {
		return opts.MaxChunks
	}
	return b.defaults.MaxChunks
}

func (c *BuiltContext) addSource(seen map[string]bool, id, name string) {
	if seen[id] {
		return
	}
	seen[id] = true
	c.SourcesUsed = append(c.SourcesUsed, SourceRef{ID: id, Type: string(SourceDocument), Name: name})
}

func newChunk(content string, kind SourceType, docID, filename, source string, rel *float64, meta map[string]any) ContextChunk {
	if source == "" {
		source = "chunk"
	}
	return ContextChunk{
		Content:       content,
		SourceType:    kind,
		SourceID:      docID,
		SourceName:    fmt.Sprintf("%s (%s)", filename, source),
		Relevance:     rel,
		TokenEstimate: utf8.RuneCountInString(content) / charsPerToken,
		Metadata:      meta,
	}
}

// sortByRelevance orders descending; equal scores keep retrieval order.
func sortByRelevance(chunks []ContextChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return relevance(chunks[i]) > relevance(chunks[j])
	})
}

func relevance(c ContextChunk) float64 {
	if c.Relevance == nil {
		return 0
	}
	return *c.Relevance
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

func estimateTokens(chunks []ContextChunk) int {
	total := 0
	for _, c := range chunks {
		total += utf8.RuneCountInString(c.Content)
	}
	return total / charsPerToken
}
