package parsing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docxBody = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Intro</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
	`<w:tbl><w:tr><w:tc><w:tcPr/><w:p><w:r><w:t>A</w:t></w:r></w:p></w:tc>` +
	`<w:tc><w:p><w:r><w:t>B</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
	`<w:p><w:pPr><w:pStyle w:val="Custom2"/></w:pPr><w:r><w:t>Details</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>` +
	`<w:p/>` +
	`</w:body></w:document>`

func docxFixture(t *testing.T) []byte {
	return buildZip(t, map[string]string{
		"word/document.xml": docxBody,
		"word/styles.xml": `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
			`<w:style w:styleId="Custom2"><w:name w:val="heading 2"/></w:style></w:styles>`,
		"docProps/core.xml": `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
			`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">` +
			`<dc:title>Handbook</dc:title><dc:creator>Ann</dc:creator>` +
			`<dcterms:created>2024-03-01T10:00:00Z</dcterms:created></cp:coreProperties>`,
	})
}

func TestDocxParagraphChunks(t *testing.T) {
	res := NewOfficeTextExtractor(Toolchain{}).Extract(context.Background(), docxFixture(t), "handbook.docx", 0, 0)
	require.True(t, res.Success, res.Error)

	chunks := res.Content.Chunks
	assert.Equal(t, []string{"paragraph_0", "paragraph_1", "paragraph_2", "paragraph_3"}, sources(chunks))
	requireContiguous(t, chunks)
	assert.Equal(t, "Intro", chunks[1].Heading)
	assert.Equal(t, "Details", chunks[2].Heading)
	assert.Equal(t, "Second paragraph.", chunks[3].Content)
	assert.Equal(t, "Details", chunks[3].Heading)

	require.Len(t, res.Content.Tables, 1)
	assert.Equal(t, "table_0", res.Content.Tables[0].Source)
	assert.Equal(t, [][]string{{"A", "B"}}, res.Content.Tables[0].Rows)

	assert.Equal(t, "Intro\n\nFirst paragraph.\n\nDetails\n\nSecond paragraph.", res.Content.FullText)
	assert.Equal(t, "Handbook", res.Metadata.Title)
	assert.Equal(t, "Ann", res.Metadata.Author)
	require.NotNil(t, res.Metadata.CreatedAt)
	assert.Equal(t, 2024, res.Metadata.CreatedAt.Year())
}

func TestDocxSectionChunksWhenSized(t *testing.T) {
	res := NewOfficeTextExtractor(Toolchain{}).Extract(context.Background(), docxFixture(t), "handbook.docx", 1000, 200)
	require.True(t, res.Success, res.Error)

	chunks := res.Content.Chunks
	assert.Equal(t, []string{"chunk_0", "chunk_1"}, sources(chunks))
	assert.Equal(t, "Intro\n\nFirst paragraph.", chunks[0].Content)
	assert.Equal(t, "Intro", chunks[0].Heading)
	assert.Equal(t, "Details", chunks[1].Heading)
}

func TestDocFallsBackToPlainText(t *testing.T) {
	tools := Toolchain{PlainText: &fakeConverter{out: []byte("Legacy words here.")}}
	res := NewOfficeTextExtractor(tools).Extract(context.Background(), []byte("binary doc"), "old.doc", 1000, 200)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Warnings, "Could not convert .doc to .docx, using fallback extraction")
	assert.Equal(t, []string{"paragraph_0"}, sources(res.Content.Chunks))
	assert.Equal(t, "Legacy words here.", res.Content.FullText)
}

func TestDocConvertedThroughLegacyConverter(t *testing.T) {
	legacy := &fakeConverter{out: docxFixture(t)}
	res := NewOfficeTextExtractor(Toolchain{Legacy: legacy}).Extract(context.Background(), []byte("binary doc"), "old.doc", 0, 0)
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, legacy.calls)
	assert.Equal(t, TagDoc, res.Metadata.FileType)
	assert.Len(t, res.Content.Chunks, 4)
}

func TestDocWithoutAnyConverterFails(t *testing.T) {
	res := NewOfficeTextExtractor(Toolchain{}).Extract(context.Background(), []byte("binary doc"), "old.doc", 1000, 200)
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err(), ErrExtraction))
}
