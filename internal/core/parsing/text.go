package parsing

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"github.com/markdave123-py/docsift/internal/logging"
)

type textExtractor struct {
	tools    Toolchain
	markdown goldmark.Markdown
}

// NewTextExtractor handles the plain and structured text family: txt, md,
// html, json, xml and rtf.
func NewTextExtractor(tools Toolchain) Extractor {
	return &textExtractor{tools: tools, markdown: goldmark.New()}
}

func (e *textExtractor) Tags() []FormatTag {
	return []FormatTag{TagTxt, TagMd, TagHTML, TagJSON, TagXML, TagRTF}
}

func (e *textExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	tag := Detect(filename)
	meta := newMetadata(data, filename, tag)

	text, encoding, err := DecodeText(data)
	if err != nil {
		return failed(ErrDecode, "Could not decode file (tried utf-8, latin-1, cp1252)")
	}
	if encoding != "utf-8" {
		meta.Custom["encoding"] = encoding
	}

	var (
		full  string
		links []string
	)
	switch tag {
	case TagHTML:
		full, links = htmlToText(text, htmlBlockTags)
	case TagJSON:
		full = flattenJSON(ctx, text)
	case TagXML:
		full = flattenXML(ctx, text)
	case TagMd:
		full, links = e.markdownToText(text)
	case TagRTF:
		full = e.rtfToText(ctx, data)
	default:
		full = strings.TrimSpace(text)
	}

	meta.WordCount = intPtr(wordCount(full))
	content := &DocumentContent{
		FullText: full,
		Chunks:   ChunkText(full, "text", size, overlap),
		Links:    links,
	}
	return succeeded(meta, content, nil)
}

var (
	htmlSkipTags  = map[string]bool{"script": true, "style": true, "noscript": true, "head": true}
	htmlBlockTags = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "tr": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// htmlToText returns the visible text of src, with a line break before every
// tag in blocks, plus every anchor href in document order.
func htmlToText(src string, blocks map[string]bool) (string, []string) {
	var (
		b     strings.Builder
		links []string
		skip  int
	)
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeLines(b.String()), links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if htmlSkipTags[tag] && tt == html.StartTagToken {
				skip++
			}
			if tag == "a" && hasAttr {
				for {
					key, val, more := z.TagAttr()
					if string(key) == "href" && len(val) > 0 {
						links = append(links, string(val))
					}
					if !more {
						break
					}
				}
			}
			if blocks[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if htmlSkipTags[string(name)] && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// flattenJSON renders every scalar as "path: value", keeping key order.
// Invalid JSON is indexed as-is.
func flattenJSON(ctx context.Context, src string) string {
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()

	var parts []string
	if err := walkJSON(dec, "", &parts); err != nil {
		logging.FromContext(ctx).Warn("JSON parsing error", zap.Error(err))
		return strings.TrimSpace(src)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		logging.FromContext(ctx).Warn("JSON parsing error", zap.String("reason", "trailing data"))
		return strings.TrimSpace(src)
	}
	return strings.Join(parts, "\n")
}

func walkJSON(dec *json.Decoder, prefix string, parts *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := keyTok.(string)
				path := key
				if prefix != "" {
					path = prefix + "." + key
				}
				if err := walkJSON(dec, path, parts); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := walkJSON(dec, fmt.Sprintf("%s[%d]", prefix, i), parts); err != nil {
					return err
				}
			}
		}
		// closing delimiter
		_, err := dec.Token()
		return err
	default:
		value := "null"
		if t != nil {
			value = fmt.Sprint(t)
		}
		if prefix == "" {
			*parts = append(*parts, value)
		} else {
			*parts = append(*parts, prefix+": "+value)
		}
		return nil
	}
}

// flattenXML renders each element's leading text as "tag: text" and keeps
// text that trails a closing tag as its own line.
func flattenXML(ctx context.Context, src string) string {
	dec := xml.NewDecoder(strings.NewReader(src))
	dec.Strict = false

	var (
		parts   []string
		pending bytes.Buffer
		lastTag string
		opened  bool
	)
	flush := func() {
		t := strings.TrimSpace(pending.String())
		pending.Reset()
		if t == "" {
			return
		}
		if opened {
			parts = append(parts, lastTag+": "+t)
		} else {
			parts = append(parts, t)
		}
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			flush()
			return strings.Join(parts, "\n")
		}
		if err != nil {
			logging.FromContext(ctx).Warn("XML parsing error", zap.Error(err))
			return strings.TrimSpace(tagPattern.ReplaceAllString(src, " "))
		}
		switch t := tok.(type) {
		case xml.StartElement:
			flush()
			lastTag, opened = t.Name.Local, true
		case xml.EndElement:
			flush()
			opened = false
		case xml.CharData:
			pending.Write(t)
		}
	}
}

// markdownToText drops code, heading markers, emphasis markers and rules,
// keeps link text and returns link destinations separately.
func (e *textExtractor) markdownToText(src string) (string, []string) {
	source := []byte(src)
	doc := e.markdown.Parser().Parse(gmtext.NewReader(source))

	var (
		b     strings.Builder
		links []string
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.CodeSpan, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if entering {
				links = append(links, string(node.Destination))
			}
		case *ast.AutoLink:
			if entering {
				url := string(node.URL(source))
				links = append(links, url)
				b.WriteString(url)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return normalizeLines(b.String()), links
}

var rtfControlWord = regexp.MustCompile(`\\[a-z]+\d*\s?`)

// rtfToText never fails: when no converter produces text the control words
// and group braces are stripped by hand.
func (e *textExtractor) rtfToText(ctx context.Context, data []byte) string {
	text, err := plainText(ctx, e.tools.PlainText, data, TagRTF)
	if err == nil {
		return text
	}
	logging.FromContext(ctx).Debug("rtf converters unavailable, stripping control words", zap.Error(err))

	raw, derr := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if derr != nil {
		raw = data
	}
	s := rtfControlWord.ReplaceAllString(string(raw), "")
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	return strings.TrimSpace(s)
}
