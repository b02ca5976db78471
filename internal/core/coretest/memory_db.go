// Package coretest provides in-memory implementations of the core
// collaborator interfaces for tests.
package coretest

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/models"
)

// MemoryDB is a core.DbClient backed by maps. Search ranks by cosine
// similarity; hybrid text score is the fraction of query words present.
type MemoryDB struct {
	mu    sync.Mutex
	docs  map[string]*memDoc
	order []string
	clock time.Time

	StoreErr  error
	SearchErr error
	PingErr   error
}

type memDoc struct {
	doc    models.Document
	chunks []models.DocumentChunk
	tables []models.DocumentTable
	links  []string
}

var _ core.DbClient = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		docs:  make(map[string]*memDoc),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MemoryDB) StoreDocument(ctx context.Context, rec *models.DocumentRecord) (string, []models.Document, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return "", nil, m.StoreErr
	}

	doc := rec.Document
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	var replaced []models.Document
	for _, id := range append([]string(nil), m.order...) {
		d := m.docs[id].doc
		if d.FileHash == doc.FileHash && sameInvestigation(d.InvestigationID, doc.InvestigationID) {
			replaced = append(replaced, models.Document{ID: d.ID, Filename: d.Filename, S3Key: d.S3Key})
			m.remove(id)
		}
	}

	m.clock = m.clock.Add(time.Second)
	doc.CreatedAt = m.clock
	doc.ChunkCount = len(rec.Chunks)

	stored := &memDoc{doc: doc, links: append([]string(nil), rec.Links...)}
	for _, ch := range rec.Chunks {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.DocumentID = doc.ID
		stored.chunks = append(stored.chunks, ch)
	}
	for _, t := range rec.Tables {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.DocumentID = doc.ID
		stored.tables = append(stored.tables, t)
	}
	m.docs[doc.ID] = stored
	m.order = append(m.order, doc.ID)
	return doc.ID, replaced, nil
}

func sameInvestigation(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

func (m *MemoryDB) remove(id string) {
	delete(m.docs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *MemoryDB) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := d.doc
	return &out, nil
}

func (m *MemoryDB) ListDocuments(_ context.Context, filter models.ListFilter) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for i := len(m.order) - 1; i >= 0; i-- {
		d := m.docs[m.order[i]].doc
		if filter.InvestigationID != "" && (d.InvestigationID == nil || *d.InvestigationID != filter.InvestigationID) {
			continue
		}
		if filter.FileType != "" && !strings.EqualFold(d.FileType, filter.FileType) {
			continue
		}
		d.FullText = ""
		out = append(out, d)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryDB) DeleteDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	m.remove(id)
	return &models.Document{ID: d.doc.ID, Filename: d.doc.Filename, S3Key: d.doc.S3Key}, nil
}

func (m *MemoryDB) GetChunks(_ context.Context, documentID string, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[documentID]
	if !ok {
		return nil, nil
	}
	out := append([]models.DocumentChunk(nil), d.chunks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDB) GetTables(_ context.Context, documentID string) ([]models.DocumentTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[documentID]
	if !ok {
		return nil, nil
	}
	return append([]models.DocumentTable(nil), d.tables...), nil
}

// Links returns the stored links of a document.
func (m *MemoryDB) Links(documentID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[documentID]; ok {
		return append([]string(nil), d.links...)
	}
	return nil
}

// Count reports the number of stored documents.
func (m *MemoryDB) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryDB) GetDocumentContext(ctx context.Context, documentID string) ([]models.DocumentContextRow, error) {
	doc, err := m.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil
	}
	chunks, _ := m.GetChunks(ctx, documentID, 0)
	out := make([]models.DocumentContextRow, len(chunks))
	for i, ch := range chunks {
		out[i] = models.DocumentContextRow{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			FileType:   doc.FileType,
			Title:      doc.Title,
			ChunkIndex: ch.ChunkIndex,
			Content:    ch.Content,
			Source:     ch.Source,
			Heading:    ch.Heading,
			PageNumber: ch.PageNumber,
		}
	}
	return out, nil
}

type scored struct {
	doc      models.Document
	chunk    models.DocumentChunk
	semantic float64
	text     float64
	combined float64
}

func (m *MemoryDB) candidates(investigationID string) []scored {
	var out []scored
	for _, id := range m.order {
		d := m.docs[id]
		if investigationID != "" && (d.doc.InvestigationID == nil || *d.doc.InvestigationID != investigationID) {
			continue
		}
		for _, ch := range d.chunks {
			out = append(out, scored{doc: d.doc, chunk: ch})
		}
	}
	return out
}

func (m *MemoryDB) SearchChunks(_ context.Context, query []float32, threshold float64, limit int, investigationID string) ([]models.ChunkSearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	var hits []scored
	for _, c := range m.candidates(investigationID) {
		sim, ok := cosine(query, c.chunk.Embedding)
		if !ok || sim <= threshold {
			continue
		}
		c.semantic = sim
		hits = append(hits, c)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].semantic != hits[j].semantic {
			return hits[i].semantic > hits[j].semantic
		}
		return hits[i].chunk.ID < hits[j].chunk.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.ChunkSearchResult, len(hits))
	for i, h := range hits {
		out[i] = models.ChunkSearchResult{
			ChunkID:    h.chunk.ID,
			DocumentID: h.doc.ID,
			Filename:   h.doc.Filename,
			FileType:   h.doc.FileType,
			Content:    h.chunk.Content,
			Source:     h.chunk.Source,
			Heading:    h.chunk.Heading,
			PageNumber: h.chunk.PageNumber,
			Similarity: h.semantic,
		}
	}
	return out, nil
}

func (m *MemoryDB) SearchHybrid(_ context.Context, query []float32, text string, semanticWeight float64, limit int, investigationID string) ([]models.HybridSearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	words := strings.Fields(strings.ToLower(text))
	hits := m.candidates(investigationID)
	for i := range hits {
		sim, ok := cosine(query, hits[i].chunk.Embedding)
		if !ok {
			sim = 0
		}
		hits[i].semantic = sim
		hits[i].text = textScore(words, hits[i].chunk.Content)
		hits[i].combined = semanticWeight*hits[i].semantic + (1-semanticWeight)*hits[i].text
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].combined != hits[j].combined {
			return hits[i].combined > hits[j].combined
		}
		return hits[i].chunk.ID < hits[j].chunk.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.HybridSearchResult, len(hits))
	for i, h := range hits {
		out[i] = models.HybridSearchResult{
			ChunkID:       h.chunk.ID,
			DocumentID:    h.doc.ID,
			Filename:      h.doc.Filename,
			FileType:      h.doc.FileType,
			Content:       h.chunk.Content,
			Source:        h.chunk.Source,
			Heading:       h.chunk.Heading,
			PageNumber:    h.chunk.PageNumber,
			SemanticScore: h.semantic,
			TextScore:     h.text,
			CombinedScore: h.combined,
		}
	}
	return out, nil
}

func (m *MemoryDB) Ping(context.Context) error { return m.PingErr }

func (m *MemoryDB) Close() error { return nil }

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func textScore(words []string, content string) float64 {
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return float64(n) / float64(len(words))
}
