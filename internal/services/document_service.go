package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/core/retrieval"
	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/models"
)

// ErrBlobUnavailable is returned when a document has no stored original or
// blob storage is disabled.
var ErrBlobUnavailable = errors.New("original file not available")

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
	builder *retrieval.ContextBuilder
}

// NewDocumentService accepts a nil storage, which disables downloads and
// blob cleanup.
func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string, builder *retrieval.ContextBuilder) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket, builder: builder}
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocument(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, filter models.ListFilter) ([]models.Document, error) {
	docs, err := s.db.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Chunks returns every chunk in chunk_index order, or ErrNotFound when the
// document is unknown or has none.
func (s *DocumentService) Chunks(ctx context.Context, id string) ([]models.DocumentChunk, error) {
	chunks, err := s.db.GetChunks(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, core.ErrNotFound
	}
	return chunks, nil
}

func (s *DocumentService) Tables(ctx context.Context, id string) ([]models.DocumentTable, error) {
	if _, err := s.db.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	tables, err := s.db.GetTables(ctx, id)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []models.DocumentTable{}
	}
	return tables, nil
}

// DocumentContext is a whole document rendered for prompting.
type DocumentContext struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	Title       string `json:"title,omitempty"`
	ContextText string `json:"context_text"`
	ChunkCount  int    `json:"chunk_count"`
}

// Context renders each chunk as "[source - heading]\ncontent", blocks
// separated by a blank line.
func (s *DocumentService) Context(ctx context.Context, id string) (*DocumentContext, error) {
	rows, err := s.db.GetDocumentContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, core.ErrNotFound
	}

	blocks := make([]string, len(rows))
	for i, r := range rows {
		header := "[" + r.Source
		if r.Heading != "" {
			header += " - " + r.Heading
		}
		blocks[i] = header + "]\n" + r.Content
	}
	first := rows[0]
	return &DocumentContext{
		DocumentID:  first.DocumentID,
		Filename:    first.Filename,
		FileType:    first.FileType,
		Title:       first.Title,
		ContextText: strings.Join(blocks, "\n\n"),
		ChunkCount:  len(rows),
	}, nil
}

// Delete removes the document with its chunks, tables and links. The stored
// original is removed best-effort afterwards.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.db.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.S3Key != "" && s.storage != nil && s.bucket != "" {
		if err := s.storage.DeleteFile(context.WithoutCancel(ctx), s.bucket, doc.S3Key); err != nil {
			logging.FromContext(ctx).Warn("blob delete failed",
				zap.String("document_id", id), zap.String("key", doc.S3Key), zap.Error(err))
		}
	}
	return nil
}

// Download opens the stored original. The caller closes the reader.
func (s *DocumentService) Download(ctx context.Context, id string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.S3Key == "" || s.storage == nil || s.bucket == "" {
		return nil, nil, ErrBlobUnavailable
	}
	rc, err := s.storage.GetObjectReader(ctx, s.bucket, doc.S3Key)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return doc, rc, nil
}

// SearchParams are the caller-facing search knobs; nil pointers take the
// builder defaults.
type SearchParams struct {
	Query           string
	Limit           int
	Threshold       *float64
	SemanticWeight  *float64
	InvestigationID string
}

type SearchResponse struct {
	Query        string                     `json:"query"`
	Results      []models.ChunkSearchResult `json:"results"`
	TotalResults int                        `json:"total_results"`
}

// Search runs semantic search and returns the raw ranked rows.
func (s *DocumentService) Search(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	threshold := *s.builder.Defaults().Threshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	vec, err := s.builder.EmbedQuery(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.SearchChunks(ctx, vec, threshold, p.Limit, p.InvestigationID)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if rows == nil {
		rows = []models.ChunkSearchResult{}
	}
	return &SearchResponse{Query: p.Query, Results: rows, TotalResults: len(rows)}, nil
}

func (s *DocumentService) SearchHybrid(ctx context.Context, p SearchParams) ([]models.HybridSearchResult, error) {
	weight := *s.builder.Defaults().SemanticWeight
	if p.SemanticWeight != nil {
		weight = *p.SemanticWeight
	}
	vec, err := s.builder.EmbedQuery(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.SearchHybrid(ctx, vec, p.Query, weight, p.Limit, p.InvestigationID)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	if rows == nil {
		rows = []models.HybridSearchResult{}
	}
	return rows, nil
}
