package parsing

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeConverter struct {
	out   []byte
	err   error
	calls int
	from  FormatTag
	to    FormatTag
}

func (f *fakeConverter) Convert(_ context.Context, _ []byte, from, to FormatTag) ([]byte, error) {
	f.calls++
	f.from, f.to = from, to
	return f.out, f.err
}

type fakePDFReader struct {
	pages    []string
	pagesErr error
	runs     [][]PDFTextRun
	runsErr  error
	info     PDFInfo
	infoErr  error
}

func (f fakePDFReader) Pages(context.Context, []byte) ([]string, error) { return f.pages, f.pagesErr }

func (f fakePDFReader) Runs(context.Context, []byte) ([][]PDFTextRun, error) { return f.runs, f.runsErr }

func (f fakePDFReader) Info(context.Context, []byte) (PDFInfo, error) { return f.info, f.infoErr }

func sources(chunks []TextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Source
	}
	return out
}

func requireContiguous(t *testing.T, chunks []TextChunk) {
	t.Helper()
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex, "chunk %q", c.Source)
	}
}
