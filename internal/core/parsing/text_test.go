package parsing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractText(t *testing.T, tools Toolchain, name, body string) *ParserResult {
	t.Helper()
	return NewTextExtractor(tools).Extract(context.Background(), []byte(body), name, 1000, 200)
}

func TestHTMLTextAndLinks(t *testing.T) {
	res := extractText(t, Toolchain{}, "page.html", `<p>Hello</p><a href="http://x.test">link</a>`)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content.FullText, "Hello")
	assert.Contains(t, res.Content.FullText, "link")
	assert.Equal(t, []string{"http://x.test"}, res.Content.Links)
	assert.Equal(t, "text_0", res.Content.Chunks[0].Source)
}

func TestHTMLSkipsScriptsAndBreaksBlocks(t *testing.T) {
	doc := `<html><head><title>Ignored</title><style>p{}</style></head><body>` +
		`<script>var x = 1;</script><h1>Title</h1><p>Body   text</p><span>inline</span></body></html>`
	res := extractText(t, Toolchain{}, "page.html", doc)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Title\nBody text inline", res.Content.FullText)
}

func TestJSONFlattening(t *testing.T) {
	res := extractText(t, Toolchain{}, "data.json",
		`{"name":"Ann","tags":["a","b"],"meta":{"age":30,"ok":true,"none":null}}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "name: Ann\ntags[0]: a\ntags[1]: b\nmeta.age: 30\nmeta.ok: true\nmeta.none: null", res.Content.FullText)
}

func TestJSONInvalidKeepsRawText(t *testing.T) {
	res := extractText(t, Toolchain{}, "broken.json", `{"name": "Ann",`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, `{"name": "Ann",`, res.Content.FullText)
}

func TestXMLFlattening(t *testing.T) {
	res := extractText(t, Toolchain{}, "book.xml",
		`<?xml version="1.0"?><book><title>Go</title><author>Ann</author>tail</book>`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "title: Go\nauthor: Ann\ntail", res.Content.FullText)
}

func TestMarkdownStripsSyntax(t *testing.T) {
	md := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n" +
		"```\ncode here\n```\n\n---\n\nEnd `inline` done.\n"
	res := extractText(t, Toolchain{}, "notes.md", md)
	require.True(t, res.Success, res.Error)

	text := res.Content.FullText
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some bold text with a link.")
	assert.Contains(t, text, "End done.")
	assert.NotContains(t, text, "code here")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "---")
	assert.Equal(t, []string{"https://example.com"}, res.Content.Links)
}

func TestRTFManualStripWithoutConverters(t *testing.T) {
	res := extractText(t, Toolchain{}, "memo.rtf", `{\rtf1\ansi{\fonttbl\f0\fswiss Helvetica;}\f0\pard Hello RTF world.\par}`)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content.FullText, "Hello RTF world.")
	assert.NotContains(t, res.Content.FullText, `\par`)
	assert.NotContains(t, res.Content.FullText, "{")
}

func TestRTFUsesConverter(t *testing.T) {
	conv := &fakeConverter{out: []byte("  converted text  ")}
	res := extractText(t, Toolchain{PlainText: conv}, "memo.rtf", `{\rtf1 ignored}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "converted text", res.Content.FullText)
	assert.Equal(t, TagRTF, conv.from)
	assert.Equal(t, TagTxt, conv.to)
}

func TestPlainTextRecordsEncoding(t *testing.T) {
	res := NewTextExtractor(Toolchain{}).Extract(context.Background(), []byte{'c', 'a', 'f', 0xE9, '\n'}, "menu.txt", 1000, 200)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "café", res.Content.FullText)
	assert.Equal(t, "latin-1", res.Metadata.Custom["encoding"])
	require.NotNil(t, res.Metadata.WordCount)
	assert.Equal(t, 1, *res.Metadata.WordCount)
}

func TestEmptyTextFails(t *testing.T) {
	res := extractText(t, Toolchain{}, "blank.txt", "   \n")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err(), ErrEmptyResult)
}
