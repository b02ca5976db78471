package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
	"github.com/markdave123-py/docsift/internal/logging"
)

// FormatSupport reports which filenames the parser can handle.
type FormatSupport interface {
	IsSupported(filename string) bool
	SupportedExtensions() []string
}

type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UploadOptions struct {
	InvestigationID string
	UploadedBy      string
	ChunkSize       *int
	ChunkOverlap    *int
}

type UploadResult struct {
	Success    bool     `json:"success"`
	DocumentID string   `json:"document_id,omitempty"`
	Filename   string   `json:"filename"`
	ChunkCount int      `json:"chunk_count"`
	Message    string   `json:"message"`
	Warnings   []string `json:"warnings,omitempty"`
}

type BatchResponse struct {
	Success   bool           `json:"success"`
	Results   []UploadResult `json:"results"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// IngestService stores uploaded batches inline and routes re-ingestion and
// bulk path ingestion through the background queue.
type IngestService struct {
	storer      ingestion_engine.Storer
	formats     FormatSupport
	ingestor    ingestion_engine.Ingestor
	db          core.DbClient
	objects     core.ObjectClient
	bucket      string
	parallelism int
}

func NewIngestService(
	storer ingestion_engine.Storer,
	formats FormatSupport,
	ingestor ingestion_engine.Ingestor,
	db core.DbClient,
	objects core.ObjectClient,
	bucket string,
	parallelism int,
) *IngestService {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &IngestService{
		storer:      storer,
		formats:     formats,
		ingestor:    ingestor,
		db:          db,
		objects:     objects,
		bucket:      bucket,
		parallelism: parallelism,
	}
}

func (s *IngestService) SupportedExtensions() []string {
	return s.formats.SupportedExtensions()
}

// UploadBatch stores every file and reports one result per file, in input
// order. A failing file never aborts the others.
func (s *IngestService) UploadBatch(ctx context.Context, files []UploadFile, opts UploadOptions) *BatchResponse {
	results := make([]UploadResult, len(files))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, f := range files {
		g.Go(func() error {
			results[i] = s.uploadOne(ctx, f, opts)
			return nil
		})
	}
	_ = g.Wait()

	return summarize(results)
}

func (s *IngestService) uploadOne(ctx context.Context, f UploadFile, opts UploadOptions) UploadResult {
	filename := f.Filename
	if filename == "" {
		filename = "unknown"
	}
	if !s.formats.IsSupported(filename) {
		return s.unsupported(filename)
	}

	res, err := s.storer.Store(ctx, ingestion_engine.StoreRequest{
		Data:            f.Data,
		Filename:        filename,
		ContentType:     f.ContentType,
		InvestigationID: opts.InvestigationID,
		UploadedBy:      opts.UploadedBy,
		ChunkSize:       opts.ChunkSize,
		ChunkOverlap:    opts.ChunkOverlap,
	})
	return toResult(filename, res, err, logging.FromContext(ctx))
}

func (s *IngestService) unsupported(filename string) UploadResult {
	return UploadResult{
		Filename: filename,
		Message:  "Unsupported file type. Supported: " + strings.Join(s.formats.SupportedExtensions(), ", "),
	}
}

func toResult(filename string, res *ingestion_engine.StoreResult, err error, logger *zap.Logger) UploadResult {
	if err != nil {
		logger.Error("document upload failed", zap.String("filename", filename), zap.Error(err))
		return UploadResult{Filename: filename, Message: err.Error()}
	}
	return UploadResult{
		Success:    true,
		DocumentID: res.DocumentID,
		Filename:   filename,
		ChunkCount: res.ChunkCount,
		Message:    fmt.Sprintf("Document processed successfully with %d chunks", res.ChunkCount),
		Warnings:   res.Warnings,
	}
}

func summarize(results []UploadResult) *BatchResponse {
	out := &BatchResponse{Results: results, Total: len(results)}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		}
	}
	out.Failed = out.Total - out.Succeeded
	out.Success = out.Failed == 0
	return out
}

// Reindex re-runs the stored original of a document through the queue. The
// new document replaces the old one through duplicate detection.
func (s *IngestService) Reindex(ctx context.Context, id string, opts UploadOptions) (*UploadResult, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.S3Key == "" || s.objects == nil || s.bucket == "" {
		return nil, ErrBlobUnavailable
	}

	investigation := opts.InvestigationID
	if investigation == "" && doc.InvestigationID != nil {
		investigation = *doc.InvestigationID
	}
	key := doc.S3Key

	type outcome struct {
		res *ingestion_engine.StoreResult
		err error
	}
	done := make(chan outcome, 1)
	err = s.ingestor.Enqueue(ctx, ingestion_engine.Job{
		Request: ingestion_engine.StoreRequest{
			Filename:        doc.Filename,
			InvestigationID: investigation,
			UploadedBy:      doc.UploadedBy,
			ChunkSize:       opts.ChunkSize,
			ChunkOverlap:    opts.ChunkOverlap,
		},
		Load: func(ctx context.Context) ([]byte, error) {
			return s.objects.GetFile(ctx, s.bucket, key)
		},
		Done: func(res *ingestion_engine.StoreResult, err error) {
			done <- outcome{res, err}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue reindex: %w", err)
	}

	select {
	case o := <-done:
		r := toResult(doc.Filename, o.res, o.err, logging.FromContext(ctx))
		return &r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IngestPaths queues local files and waits for all of them. Unreadable or
// unsupported paths are reported in their result.
func (s *IngestService) IngestPaths(ctx context.Context, paths []string, opts UploadOptions) *BatchResponse {
	results := make([]UploadResult, len(paths))
	var wg sync.WaitGroup

	for i, p := range paths {
		name := filepath.Base(p)
		if !s.formats.IsSupported(name) {
			results[i] = s.unsupported(name)
			continue
		}

		wg.Add(1)
		err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{
			Request: ingestion_engine.StoreRequest{
				Filename:        name,
				InvestigationID: opts.InvestigationID,
				UploadedBy:      opts.UploadedBy,
				ChunkSize:       opts.ChunkSize,
				ChunkOverlap:    opts.ChunkOverlap,
			},
			Load: func(context.Context) ([]byte, error) {
				return os.ReadFile(p)
			},
			Done: func(res *ingestion_engine.StoreResult, err error) {
				defer wg.Done()
				results[i] = toResult(name, res, err, logging.FromContext(ctx))
			},
		})
		if err != nil {
			wg.Done()
			results[i] = UploadResult{Filename: name, Message: err.Error()}
			if errors.Is(err, ingestion_engine.ErrQueueClosed) || ctx.Err() != nil {
				for j := i + 1; j < len(paths); j++ {
					results[j] = UploadResult{Filename: filepath.Base(paths[j]), Message: err.Error()}
				}
				break
			}
		}
	}
	wg.Wait()
	return summarize(results)
}
