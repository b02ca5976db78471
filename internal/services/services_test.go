package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/core/coretest"
	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
	"github.com/markdave123-py/docsift/internal/core/llm"
	"github.com/markdave123-py/docsift/internal/core/parsing"
	"github.com/markdave123-py/docsift/internal/core/retrieval"
	"github.com/markdave123-py/docsift/internal/models"
)

type env struct {
	db       *coretest.MemoryDB
	objects  *coretest.MemoryObjects
	docs     *DocumentService
	ingest   *IngestService
	ingestor *ingestion_engine.DocumentIngestor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := coretest.NewMemoryDB()
	objects := coretest.NewMemoryObjects()
	emb := llm.NewHashEmbedder(64)
	parser := parsing.NewService(parsing.NewDefaultRegistry(parsing.Toolchain{}), 1000, 200)

	cfg := &ingestion_engine.IngestConfig{Bucket: "docs"}
	storer := ingestion_engine.NewStorageService(parser, db, objects, emb, cfg)
	ing := ingestion_engine.NewDocumentIngestor(storer, cfg)
	ing.Start(context.Background(), 2)
	t.Cleanup(ing.Close)

	builder := retrieval.NewContextBuilder(db, emb, retrieval.Defaults{})
	return &env{
		db:       db,
		objects:  objects,
		docs:     NewDocumentService(db, objects, "docs", builder),
		ingest:   NewIngestService(storer, parser, ing, db, objects, "docs", 2),
		ingestor: ing,
	}
}

func TestUploadBatchReportsPerFile(t *testing.T) {
	e := newEnv(t)
	resp := e.ingest.UploadBatch(context.Background(), []UploadFile{
		{Filename: "notes.txt", Data: []byte("The shipment left Rotterdam on Monday.")},
		{Filename: "tool.exe", Data: []byte{0x4d, 0x5a}},
		{Filename: "empty.csv", Data: nil},
	}, UploadOptions{})

	assert.False(t, resp.Success)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)

	ok := resp.Results[0]
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.DocumentID)
	assert.Equal(t, 1, ok.ChunkCount)
	assert.Equal(t, "Document processed successfully with 1 chunks", ok.Message)

	assert.Equal(t, "tool.exe", resp.Results[1].Filename)
	assert.True(t, strings.HasPrefix(resp.Results[1].Message, "Unsupported file type. Supported: "))
	assert.Contains(t, resp.Results[1].Message, ".pdf")

	assert.False(t, resp.Results[2].Success)
	assert.Contains(t, resp.Results[2].Message, "Empty CSV file")
}

func TestUploadBatchRejectsBadInvestigation(t *testing.T) {
	e := newEnv(t)
	resp := e.ingest.UploadBatch(context.Background(), []UploadFile{{Filename: "a.txt", Data: []byte("hi")}},
		UploadOptions{InvestigationID: "nope"})
	assert.False(t, resp.Success)
	assert.Equal(t, ingestion_engine.ErrInvalidInvestigationID.Error(), resp.Results[0].Message)
}

func upload(t *testing.T, e *env, name, body string) string {
	t.Helper()
	resp := e.ingest.UploadBatch(context.Background(), []UploadFile{{Filename: name, Data: []byte(body)}}, UploadOptions{})
	require.True(t, resp.Success, resp.Results[0].Message)
	return resp.Results[0].DocumentID
}

func TestDocumentLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := upload(t, e, "report.md", "# Summary\n\nFunds moved offshore.\n")

	doc, err := e.docs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "report.md", doc.Filename)

	chunks, err := e.docs.Chunks(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	dc, err := e.docs.Context(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, dc.DocumentID)
	assert.Equal(t, len(chunks), dc.ChunkCount)
	assert.True(t, strings.HasPrefix(dc.ContextText, "["+chunks[0].Source))

	list, err := e.docs.List(ctx, models.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	rc, err := openDownload(t, e, id)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Contains(t, string(body), "Funds moved offshore.")

	require.NoError(t, e.docs.Delete(ctx, id))
	assert.Empty(t, e.objects.Keys())
	assert.ErrorIs(t, e.docs.Delete(ctx, id), core.ErrNotFound)

	_, err = e.docs.Chunks(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = e.docs.Context(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = e.docs.Tables(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func openDownload(t *testing.T, e *env, id string) (io.ReadCloser, error) {
	t.Helper()
	_, rc, err := e.docs.Download(context.Background(), id)
	if rc != nil {
		t.Cleanup(func() { _ = rc.Close() })
	}
	return rc, err
}

func TestContextHeaderIncludesHeading(t *testing.T) {
	db := coretest.NewMemoryDB()
	_, _, err := db.StoreDocument(context.Background(), &models.DocumentRecord{
		Document: models.Document{ID: "d1", Filename: "memo.docx", FileType: "docx", FileHash: "h"},
		Chunks: []models.DocumentChunk{
			{ChunkIndex: 0, Content: "Intro text", Source: "paragraph_0", Heading: "Background"},
			{ChunkIndex: 1, Content: "More", Source: "paragraph_1"},
		},
	})
	require.NoError(t, err)

	svc := NewDocumentService(db, nil, "", nil)
	dc, err := svc.Context(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "[paragraph_0 - Background]\nIntro text\n\n[paragraph_1]\nMore", dc.ContextText)
	assert.Equal(t, "memo.docx", dc.Filename)

	_, _, err = svc.Download(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrBlobUnavailable)
}

func TestSearchAndHybrid(t *testing.T) {
	e := newEnv(t)
	upload(t, e, "a.txt", "Wire transfer to the offshore account.")
	upload(t, e, "b.txt", "Quarterly weather summary for the harbour.")

	zero := 0.0
	res, err := e.docs.Search(context.Background(), SearchParams{Query: "offshore wire transfer", Limit: 5, Threshold: &zero})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "a.txt", res.Results[0].Filename)
	assert.Equal(t, len(res.Results), res.TotalResults)

	hybrid, err := e.docs.SearchHybrid(context.Background(), SearchParams{Query: "weather harbour", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hybrid, 2)
	assert.Equal(t, "b.txt", hybrid[0].Filename)

	none, err := e.docs.Search(context.Background(), SearchParams{Query: "zzz", Limit: 5})
	require.NoError(t, err)
	assert.NotNil(t, none.Results)
}

func TestReindexReplacesDocument(t *testing.T) {
	e := newEnv(t)
	id := upload(t, e, "a.txt", "First sentence here. Second sentence here.")

	size := 100
	res, err := e.ingest.Reindex(context.Background(), id, UploadOptions{ChunkSize: &size})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.NotEqual(t, id, res.DocumentID)

	_, err = e.docs.Get(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 1, e.db.Count())
	assert.Len(t, e.objects.Keys(), 1)
}

func TestReindexWithoutBlob(t *testing.T) {
	e := newEnv(t)
	e.objects.UploadErr = errors.New("offline")
	id := upload(t, e, "a.txt", "Body text.")

	_, err := e.ingest.Reindex(context.Background(), id, UploadOptions{})
	assert.ErrorIs(t, err, ErrBlobUnavailable)

	_, err = e.ingest.Reindex(context.Background(), "missing", UploadOptions{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIngestPaths(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(good, []byte("Meeting moved to Friday."), 0o600))
	skip := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(skip, []byte{0x89}, 0o600))
	missing := filepath.Join(dir, "gone.txt")

	resp := e.ingest.IngestPaths(context.Background(), []string{good, skip, missing}, UploadOptions{})
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Succeeded)
	assert.True(t, resp.Results[0].Success)
	assert.Contains(t, resp.Results[1].Message, "Unsupported file type")
	assert.Contains(t, resp.Results[2].Message, "load gone.txt")
}

func TestIngestPathsAfterClose(t *testing.T) {
	e := newEnv(t)
	e.ingestor.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	resp := e.ingest.IngestPaths(context.Background(), []string{a, b}, UploadOptions{})
	assert.Equal(t, 2, resp.Failed)
	assert.Equal(t, ingestion_engine.ErrQueueClosed.Error(), resp.Results[1].Message)
}

func TestIngestPathsReturnsWhenWorkersStop(t *testing.T) {
	db := coretest.NewMemoryDB()
	objects := coretest.NewMemoryObjects()
	parser := parsing.NewService(parsing.NewDefaultRegistry(parsing.Toolchain{}), 1000, 200)
	cfg := &ingestion_engine.IngestConfig{Bucket: "docs"}
	storer := ingestion_engine.NewStorageService(parser, db, objects, llm.NewHashEmbedder(64), cfg)

	workerCtx, stop := context.WithCancel(context.Background())
	ing := ingestion_engine.NewDocumentIngestor(storer, cfg)
	ing.Start(workerCtx, 1)
	t.Cleanup(ing.Close)
	stop()
	svc := NewIngestService(storer, parser, ing, db, objects, "docs", 2)

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("Cargo manifest for "+name), 0o600))
		paths = append(paths, p)
	}

	got := make(chan *BatchResponse, 1)
	go func() { got <- svc.IngestPaths(context.Background(), paths, UploadOptions{}) }()
	select {
	case resp := <-got:
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, 3, resp.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("IngestPaths hung after the workers stopped")
	}
}
