package core

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/docsift/internal/models"
)

// ErrNotFound is returned when a document id matches no row.
var ErrNotFound = errors.New("not found")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	// StoreDocument inserts the document, its chunks, tables and links in one
	// transaction. Any document with the same file hash in the same
	// investigation is deleted inside that transaction and returned.
	StoreDocument(ctx context.Context, rec *models.DocumentRecord) (id string, replaced []models.Document, err error)

	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.ListFilter) ([]models.Document, error)
	// DeleteDocument removes the document and, by cascade, everything it owns.
	DeleteDocument(ctx context.Context, id string) (*models.Document, error)

	// GetChunks returns chunks in chunk_index order; limit <= 0 means all.
	GetChunks(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error)
	GetTables(ctx context.Context, documentID string) ([]models.DocumentTable, error)
	GetDocumentContext(ctx context.Context, documentID string) ([]models.DocumentContextRow, error)

	SearchChunks(ctx context.Context, query []float32, threshold float64, limit int, investigationID string) ([]models.ChunkSearchResult, error)
	SearchHybrid(ctx context.Context, query []float32, text string, semanticWeight float64, limit int, investigationID string) ([]models.HybridSearchResult, error)

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
