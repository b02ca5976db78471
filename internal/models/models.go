package models

import (
	"time"
)

// Document is one stored source file together with its extracted metadata.
type Document struct {
	ID              string         `db:"id" json:"id"`
	Filename        string         `db:"filename" json:"filename"`
	FileType        string         `db:"file_type" json:"file_type"`
	FileSize        int64          `db:"file_size" json:"file_size"`
	FileHash        string         `db:"file_hash" json:"file_hash,omitempty"`
	S3Key           string         `db:"s3_key" json:"s3_key,omitempty"`
	Title           string         `db:"title" json:"title,omitempty"`
	Author          string         `db:"author" json:"author,omitempty"`
	Subject         string         `db:"subject" json:"subject,omitempty"`
	PageCount       *int           `db:"page_count" json:"page_count,omitempty"`
	WordCount       *int           `db:"word_count" json:"word_count,omitempty"`
	SlideCount      *int           `db:"slide_count" json:"slide_count,omitempty"`
	SheetCount      *int           `db:"sheet_count" json:"sheet_count,omitempty"`
	InvestigationID *string        `db:"investigation_id" json:"investigation_id,omitempty"`
	UploadedBy      string         `db:"uploaded_by" json:"uploaded_by,omitempty"`
	FullText        string         `db:"full_text" json:"-"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	ChunkCount      int            `db:"chunk_count" json:"chunk_count"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// DocumentChunk is one embedded chunk row.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	Source     string    `db:"source" json:"source,omitempty"`
	Heading    string    `db:"heading" json:"heading,omitempty"`
	PageNumber *int      `db:"page_number" json:"page_number,omitempty"`
	CharCount  int       `db:"char_count" json:"char_count"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
}

// DocumentTable is a table extracted from a document. Headers is the first
// row; Rows holds the rest.
type DocumentTable struct {
	ID          string     `db:"id" json:"id"`
	DocumentID  string     `db:"document_id" json:"document_id"`
	Source      string     `db:"source" json:"source"`
	TableIndex  int        `db:"table_index" json:"table_index"`
	Headers     []string   `db:"headers" json:"headers"`
	Rows        [][]string `db:"rows" json:"rows"`
	RowCount    int        `db:"row_count" json:"row_count"`
	ColumnCount int        `db:"column_count" json:"column_count"`
}

// DocumentRecord is everything written in the single insert transaction for
// one upload.
type DocumentRecord struct {
	Document Document
	Chunks   []DocumentChunk
	Tables   []DocumentTable
	Links    []string
}

// ChunkSearchResult is one row of a semantic search.
type ChunkSearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	FileType   string  `json:"file_type"`
	Content    string  `json:"content"`
	Source     string  `json:"source,omitempty"`
	Heading    string  `json:"heading,omitempty"`
	PageNumber *int    `json:"page_number,omitempty"`
	Similarity float64 `json:"similarity"`
}

// HybridSearchResult is one row of a hybrid search.
type HybridSearchResult struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename"`
	FileType      string  `json:"file_type"`
	Content       string  `json:"content"`
	Source        string  `json:"source,omitempty"`
	Heading       string  `json:"heading,omitempty"`
	PageNumber    *int    `json:"page_number,omitempty"`
	SemanticScore float64 `json:"semantic_score"`
	TextScore     float64 `json:"text_score"`
	CombinedScore float64 `json:"combined_score"`
}

// DocumentContextRow is one chunk of a document with the document's
// identifying fields, in chunk_index order.
type DocumentContextRow struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	Title      string `json:"title,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	Source     string `json:"source,omitempty"`
	Heading    string `json:"heading,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
}

// ListFilter narrows ListDocuments. Empty fields do not filter.
type ListFilter struct {
	InvestigationID string
	FileType        string
	Limit           int
	Offset          int
}
