package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docsift/internal/config"
	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pool := cfg.DBPoolSize
	if pool <= 0 {
		pool = 20
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(max(pool/2, 1))
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if cfg.AutoMigrate {
		if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends verify-ca parameters when a root certificate is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// StoreDocument runs the whole write path in one transaction. An advisory
// lock keyed by (hash, investigation) serialises concurrent uploads of the
// same content so the duplicate delete and the insert cannot interleave.
func (c *DatabaseClient) StoreDocument(ctx context.Context, rec *models.DocumentRecord) (string, []models.Document, error) {
	if rec == nil {
		return "", nil, errors.New("nil document record")
	}
	doc := &rec.Document
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	inv := nullableUUID(doc.InvestigationID)

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, duplicateLockKey(doc.FileHash, doc.InvestigationID)); err != nil {
		return "", nil, fmt.Errorf("duplicate lock: %w", err)
	}

	replaced, err := deleteDuplicates(ctx, tx, doc.FileHash, inv)
	if err != nil {
		return "", nil, err
	}
	if err := insertDocument(ctx, tx, doc, inv); err != nil {
		return "", nil, err
	}
	if err := insertChunks(ctx, tx, doc.ID, rec.Chunks); err != nil {
		return "", nil, err
	}
	if err := insertTables(ctx, tx, doc.ID, rec.Tables); err != nil {
		return "", nil, err
	}
	if err := insertLinks(ctx, tx, doc.ID, rec.Links); err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit document: %w", err)
	}
	if len(replaced) > 0 {
		logging.FromContext(ctx).Info("replaced duplicate documents",
			zap.String("document_id", doc.ID), zap.Int("replaced", len(replaced)))
	}
	return doc.ID, replaced, nil
}

func duplicateLockKey(hash string, investigationID *string) string {
	if investigationID == nil || *investigationID == "" {
		return "docsift:" + hash
	}
	return "docsift:" + hash + ":" + *investigationID
}

func deleteDuplicates(ctx context.Context, tx *sql.Tx, hash string, inv any) ([]models.Document, error) {
	const q = `
		DELETE FROM documents
		WHERE file_hash = $1 AND investigation_id IS NOT DISTINCT FROM $2::uuid
		RETURNING id, filename, COALESCE(s3_key, '')
	`
	rows, err := tx.QueryContext(ctx, q, hash, inv)
	if err != nil {
		return nil, fmt.Errorf("delete duplicate: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.S3Key); err != nil {
			return nil, fmt.Errorf("scan duplicate: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *models.Document, inv any) error {
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	const q = `
		INSERT INTO documents
			(id, filename, file_type, file_size, file_hash, s3_key, title, author, subject,
			 page_count, word_count, slide_count, sheet_count, investigation_id, uploaded_by,
			 full_text, char_count, metadata)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::uuid, $15, $16, $17, $18::jsonb)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, q,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.FileHash, nullIfEmpty(doc.S3Key),
		nullIfEmpty(doc.Title), nullIfEmpty(doc.Author), nullIfEmpty(doc.Subject),
		doc.PageCount, doc.WordCount, doc.SlideCount, doc.SheetCount, inv, nullIfEmpty(doc.UploadedBy),
		doc.FullText, len([]rune(doc.FullText)), string(metaJSON),
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, docID string, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, source, heading, page_number, char_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.DocumentID = docID
		var emb any
		if len(ch.Embedding) > 0 {
			emb = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, docID, ch.ChunkIndex, ch.Content, nullIfEmpty(ch.Source), nullIfEmpty(ch.Heading),
			ch.PageNumber, ch.CharCount, emb,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return nil
}

func insertTables(ctx context.Context, tx *sql.Tx, docID string, tables []models.DocumentTable) error {
	const q = `
		INSERT INTO document_tables
			(id, document_id, source, table_index, headers, rows, row_count, column_count)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
	`
	for i := range tables {
		t := &tables[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.DocumentID = docID
		headers, err := json.Marshal(nonNilStrings(t.Headers))
		if err != nil {
			return fmt.Errorf("encode table headers: %w", err)
		}
		rows := t.Rows
		if rows == nil {
			rows = [][]string{}
		}
		body, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("encode table rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q,
			t.ID, docID, t.Source, t.TableIndex, string(headers), string(body), t.RowCount, t.ColumnCount,
		); err != nil {
			return fmt.Errorf("insert table %d: %w", t.TableIndex, err)
		}
	}
	return nil
}

func insertLinks(ctx context.Context, tx *sql.Tx, docID string, links []string) error {
	const q = `
		INSERT INTO document_links (id, document_id, url)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, url) DO NOTHING
	`
	for _, link := range links {
		if strings.TrimSpace(link) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, uuid.NewString(), docID, link); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	return nil
}

const documentColumns = `
	d.id, d.filename, d.file_type, d.file_size, d.file_hash, COALESCE(d.s3_key, ''),
	COALESCE(d.title, ''), COALESCE(d.author, ''), COALESCE(d.subject, ''),
	d.page_count, d.word_count, d.slide_count, d.sheet_count,
	d.investigation_id::text, COALESCE(d.uploaded_by, ''), d.metadata::text,
	(SELECT count(*) FROM document_chunks dc WHERE dc.document_id = d.id),
	d.created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (models.Document, error) {
	var (
		d    models.Document
		meta string
	)
	err := s.Scan(
		&d.ID, &d.Filename, &d.FileType, &d.FileSize, &d.FileHash, &d.S3Key,
		&d.Title, &d.Author, &d.Subject,
		&d.PageCount, &d.WordCount, &d.SlideCount, &d.SheetCount,
		&d.InvestigationID, &d.UploadedBy, &meta, &d.ChunkCount, &d.CreatedAt,
	)
	if err != nil {
		return d, err
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return d, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return d, nil
}

func (c *DatabaseClient) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrNotFound
	}
	q := `SELECT ` + documentColumns + `, COALESCE(d.full_text, '') FROM documents d WHERE d.id = $1`

	var fullText string
	row := c.db.QueryRowContext(ctx, q, id)
	d, err := scanDocument(scanWithTail{row: row, tail: []any{&fullText}})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.FullText = fullText
	return &d, nil
}

// scanWithTail appends extra destinations after the shared document columns.
type scanWithTail struct {
	row  rowScanner
	tail []any
}

func (s scanWithTail) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.tail...)...)
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, filter models.ListFilter) ([]models.Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.InvestigationID != "" {
		if _, err := uuid.Parse(filter.InvestigationID); err != nil {
			return nil, nil
		}
		args = append(args, filter.InvestigationID)
		where = append(where, fmt.Sprintf("d.investigation_id = $%d::uuid", len(args)))
	}
	if filter.FileType != "" {
		args = append(args, strings.ToLower(filter.FileType))
		where = append(where, fmt.Sprintf("d.file_type = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + documentColumns + ` FROM documents d`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, max(filter.Offset, 0))
	q += fmt.Sprintf(` ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrNotFound
	}
	const q = `DELETE FROM documents WHERE id = $1 RETURNING id, filename, COALESCE(s3_key, '')`

	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Filename, &d.S3Key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return &d, nil
}

func (c *DatabaseClient) GetChunks(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, nil
	}
	const q = `
		SELECT id, document_id, chunk_index, content, COALESCE(source, ''), COALESCE(heading, ''),
		       page_number, char_count
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
		LIMIT $2
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := c.db.QueryContext(ctx, q, documentID, lim)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Content, &ch.Source, &ch.Heading,
			&ch.PageNumber, &ch.CharCount,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetTables(ctx context.Context, documentID string) ([]models.DocumentTable, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, nil
	}
	const q = `
		SELECT id, document_id, source, table_index, headers::text, rows::text, row_count, column_count
		FROM document_tables
		WHERE document_id = $1
		ORDER BY table_index, source
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentTable
	for rows.Next() {
		var (
			t             models.DocumentTable
			headers, body string
		)
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Source, &t.TableIndex, &headers, &body, &t.RowCount, &t.ColumnCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if err := json.Unmarshal([]byte(headers), &t.Headers); err != nil {
			return nil, fmt.Errorf("decode table headers: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &t.Rows); err != nil {
			return nil, fmt.Errorf("decode table rows: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetDocumentContext(ctx context.Context, documentID string) ([]models.DocumentContextRow, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, nil
	}
	const q = `
		SELECT document_id, filename, file_type, COALESCE(title, ''), chunk_index, content,
		       COALESCE(source, ''), COALESCE(heading, ''), page_number
		FROM get_document_context($1)
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document context: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentContextRow
	for rows.Next() {
		var r models.DocumentContextRow
		if err := rows.Scan(&r.DocumentID, &r.Filename, &r.FileType, &r.Title, &r.ChunkIndex, &r.Content,
			&r.Source, &r.Heading, &r.PageNumber); err != nil {
			return nil, fmt.Errorf("scan context row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchChunks calls search_document_chunks; an empty investigationID searches everything.
func (c *DatabaseClient) SearchChunks(ctx context.Context, query []float32, threshold float64, limit int, investigationID string) ([]models.ChunkSearchResult, error) {
	const q = `
		SELECT chunk_id, document_id, filename, file_type, content,
		       COALESCE(source, ''), COALESCE(heading, ''), page_number, similarity
		FROM search_document_chunks($1, $2, $3, $4::uuid)
	`
	inv, ok := searchFilter(investigationID)
	if !ok {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(query), threshold, limit, inv)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkSearchResult
	for rows.Next() {
		var r models.ChunkSearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Filename, &r.FileType, &r.Content,
			&r.Source, &r.Heading, &r.PageNumber, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SearchHybrid(ctx context.Context, query []float32, text string, semanticWeight float64, limit int, investigationID string) ([]models.HybridSearchResult, error) {
	const q = `
		SELECT chunk_id, document_id, filename, file_type, content,
		       COALESCE(source, ''), COALESCE(heading, ''), page_number,
		       semantic_score, text_score, combined_score
		FROM search_documents_hybrid($1, $2, $3, $4, $5::uuid)
	`
	inv, ok := searchFilter(investigationID)
	if !ok {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(query), text, semanticWeight, limit, inv)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	var out []models.HybridSearchResult
	for rows.Next() {
		var r models.HybridSearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Filename, &r.FileType, &r.Content,
			&r.Source, &r.Heading, &r.PageNumber, &r.SemanticScore, &r.TextScore, &r.CombinedScore); err != nil {
			return nil, fmt.Errorf("scan hybrid result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchFilter maps an investigation id to a query argument. A malformed id
// can match nothing, reported by ok=false.
func searchFilter(investigationID string) (arg any, ok bool) {
	if investigationID == "" {
		return nil, true
	}
	if _, err := uuid.Parse(investigationID); err != nil {
		return nil, false
	}
	return investigationID, true
}

func nullableUUID(id *string) any {
	if id == nil || *id == "" {
		return nil
	}
	return *id
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
