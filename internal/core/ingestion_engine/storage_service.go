package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/core/parsing"
	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/models"
)

// ErrInvalidInvestigationID rejects collection ids that are not UUIDs.
var ErrInvalidInvestigationID = errors.New("investigation_id must be a UUID")

// Parser is the parsing facade the storage pipeline depends on.
type Parser interface {
	Parse(ctx context.Context, data []byte, filename string, size, overlap *int) *parsing.ParserResult
}

// Storer persists one uploaded file.
type Storer interface {
	Store(ctx context.Context, req StoreRequest) (*StoreResult, error)
}

// StoreRequest describes one upload. Nil chunk parameters take the parser defaults.
type StoreRequest struct {
	Data            []byte
	Filename        string
	ContentType     string
	InvestigationID string
	UploadedBy      string
	ChunkSize       *int
	ChunkOverlap    *int
}

type StoreResult struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	FileType   string        `json:"file_type"`
	FileHash   string        `json:"file_hash"`
	ChunkCount int           `json:"chunk_count"`
	BlobKey    string        `json:"blob_key,omitempty"`
	Replaced   []string      `json:"replaced,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Took       time.Duration `json:"took_ns"`
}

// StorageService runs one upload through parse, blob copy, embedding and the
// transactional insert, strictly in that order.
type StorageService struct {
	parser   Parser
	db       core.DbClient
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	cfg      *IngestConfig
}

var _ Storer = (*StorageService)(nil)

// NewStorageService accepts a nil obj, which disables blob storage.
func NewStorageService(parser Parser, db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, cfg *IngestConfig) *StorageService {
	return &StorageService{parser: parser, db: db, obj: obj, embedder: emb, cfg: cfg.withDefaults()}
}

func (s *StorageService) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(zap.String("filename", req.Filename))

	var investigationID *string
	if req.InvestigationID != "" {
		if _, err := uuid.Parse(req.InvestigationID); err != nil {
			return nil, ErrInvalidInvestigationID
		}
		investigationID = &req.InvestigationID
	}

	parsed := s.parser.Parse(ctx, req.Data, req.Filename, req.ChunkSize, req.ChunkOverlap)
	if parsed == nil || !parsed.Success {
		return nil, fmt.Errorf("parse %s: %w", req.Filename, parsed.Err())
	}
	if len(parsed.Content.Chunks) == 0 {
		return nil, fmt.Errorf("parse %s: %w", req.Filename, parsing.ErrEmptyResult)
	}
	logger.Debug("parsed", zap.Int("chunks", len(parsed.Content.Chunks)))

	docID := uuid.NewString()
	warnings := append([]string(nil), parsed.Warnings...)

	blobKey := s.storeBlob(ctx, req, docID)
	if blobKey == "" && s.blobEnabled() {
		warnings = append(warnings, "Original file could not be stored")
	}

	texts := make([]string, len(parsed.Content.Chunks))
	for i, ch := range parsed.Content.Chunks {
		texts[i] = ch.Content
	}
	vecs, err := s.embedChunks(ctx, texts)
	if err != nil {
		s.discardBlob(ctx, blobKey)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	logger.Debug("embedded", zap.Int("vectors", len(vecs)))

	rec := buildRecord(docID, parsed, investigationID, req.UploadedBy, blobKey, vecs)
	id, replaced, err := s.db.StoreDocument(ctx, rec)
	if err != nil {
		s.discardBlob(ctx, blobKey)
		return nil, fmt.Errorf("store document: %w", err)
	}

	res := &StoreResult{
		DocumentID: id,
		Filename:   req.Filename,
		FileType:   string(parsed.Metadata.FileType),
		FileHash:   parsed.Metadata.FileHash,
		ChunkCount: len(rec.Chunks),
		BlobKey:    blobKey,
		Warnings:   warnings,
	}
	for _, old := range replaced {
		res.Replaced = append(res.Replaced, old.ID)
		if old.S3Key != "" && old.S3Key != blobKey {
			s.discardBlob(ctx, old.S3Key)
		}
	}
	res.Took = time.Since(start)

	logger.Info("document stored",
		zap.String("document_id", id),
		zap.Int("chunks", res.ChunkCount),
		zap.Int("replaced", len(res.Replaced)),
		zap.Duration("took", res.Took))
	return res, nil
}

func (s *StorageService) blobEnabled() bool {
	return s.obj != nil && s.cfg.Bucket != ""
}

// storeBlob copies the original bytes to object storage. Failures only warn.
func (s *StorageService) storeBlob(ctx context.Context, req StoreRequest, docID string) string {
	if !s.blobEnabled() {
		return ""
	}
	key := ObjectKey(req.InvestigationID, docID, req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(req.Filename)))
	}
	if _, err := s.obj.UploadFile(ctx, s.cfg.Bucket, key, req.Data, contentType); err != nil {
		logging.FromContext(ctx).Warn("blob upload failed, continuing without original",
			zap.String("filename", req.Filename), zap.String("key", key), zap.Error(err))
		return ""
	}
	return key
}

func (s *StorageService) discardBlob(ctx context.Context, key string) {
	if key == "" || !s.blobEnabled() {
		return
	}
	if err := s.obj.DeleteFile(context.WithoutCancel(ctx), s.cfg.Bucket, key); err != nil {
		logging.FromContext(ctx).Warn("blob cleanup failed", zap.String("key", key), zap.Error(err))
	}
}

// ObjectKey lays out blobs as documents/[investigation/]docID/filename.
func ObjectKey(investigationID, docID, filename string) string {
	filename = strings.TrimSpace(filepath.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	if investigationID == "" {
		return path.Join("documents", docID, filename)
	}
	return path.Join("documents", investigationID, docID, filename)
}

func buildRecord(docID string, parsed *parsing.ParserResult, investigationID *string, uploadedBy, blobKey string, vecs [][]float32) *models.DocumentRecord {
	meta := parsed.Metadata
	content := parsed.Content

	custom := make(map[string]any, len(meta.Custom)+2)
	for k, v := range meta.Custom {
		custom[k] = v
	}
	if meta.CreatedAt != nil {
		custom["created_at"] = meta.CreatedAt.UTC().Format(time.RFC3339)
	}
	if meta.ModifiedAt != nil {
		custom["modified_at"] = meta.ModifiedAt.UTC().Format(time.RFC3339)
	}
	if len(parsed.Warnings) > 0 {
		custom["warnings"] = parsed.Warnings
	}

	rec := &models.DocumentRecord{
		Document: models.Document{
			ID:              docID,
			Filename:        meta.Filename,
			FileType:        string(meta.FileType),
			FileSize:        meta.FileSize,
			FileHash:        meta.FileHash,
			S3Key:           blobKey,
			Title:           meta.Title,
			Author:          meta.Author,
			Subject:         meta.Subject,
			PageCount:       meta.PageCount,
			WordCount:       meta.WordCount,
			SlideCount:      meta.SlideCount,
			SheetCount:      meta.SheetCount,
			InvestigationID: investigationID,
			UploadedBy:      uploadedBy,
			FullText:        content.FullText,
			Metadata:        custom,
		},
		Links: content.Links,
	}

	rec.Chunks = make([]models.DocumentChunk, len(content.Chunks))
	for i, ch := range content.Chunks {
		var page *int
		if ch.PageNumber > 0 {
			p := ch.PageNumber
			page = &p
		}
		rec.Chunks[i] = models.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: ch.ChunkIndex,
			Content:    ch.Content,
			Source:     ch.Source,
			Heading:    ch.Heading,
			PageNumber: page,
			CharCount:  utf8.RuneCountInString(ch.Content),
			Embedding:  vecs[i],
		}
	}

	for _, t := range content.Tables {
		body := t.Body()
		rec.Tables = append(rec.Tables, models.DocumentTable{
			DocumentID:  docID,
			Source:      t.Source,
			TableIndex:  t.Index,
			Headers:     t.Headers(),
			Rows:        body,
			RowCount:    len(body),
			ColumnCount: t.ColumnCount(),
		})
	}
	return rec
}
