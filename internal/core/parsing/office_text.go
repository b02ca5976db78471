package parsing

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

type officeTextExtractor struct {
	tools Toolchain
}

// NewOfficeTextExtractor handles docx and legacy doc files.
func NewOfficeTextExtractor(tools Toolchain) Extractor {
	return &officeTextExtractor{tools: tools}
}

func (e *officeTextExtractor) Tags() []FormatTag { return []FormatTag{TagDocx, TagDoc} }

type docxParagraph struct {
	text    string
	heading bool
}

type docxDocument struct {
	paragraphs []docxParagraph
	tables     [][][]string
}

func (e *officeTextExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	logger := logging.FromContext(ctx)
	tag := Detect(filename)
	meta := newMetadata(data, filename, tag)
	var warnings []string

	docxBytes := data
	if tag == TagDoc {
		converted, err := convertLegacy(ctx, e.tools.Legacy, data, TagDoc, TagDocx)
		if err != nil {
			logger.Warn("doc conversion failed", zap.String("filename", filename), zap.Error(err))
			warnings = append(warnings, "Could not convert .doc to .docx, using fallback extraction")
			docxBytes = nil
		} else {
			docxBytes = converted
		}
	}

	var (
		doc *docxDocument
		pkg *ooxmlPackage
	)
	if docxBytes != nil {
		var err error
		if pkg, err = openOOXML(docxBytes); err == nil {
			doc, err = parseDocx(pkg)
		}
		if err != nil {
			logger.Debug("docx parse failed", zap.String("filename", filename), zap.Error(err))
		} else {
			pkg.applyCoreProperties(meta)
		}
	}

	var content *DocumentContent
	if doc != nil {
		content = docxContent(doc, size, overlap)
	}
	if content == nil || strings.TrimSpace(content.FullText) == "" {
		// degraded whole-document text; conversion targets the original bytes
		from := tag
		src := data
		if tag == TagDoc && docxBytes != nil {
			from, src = TagDocx, docxBytes
		}
		text, err := plainText(ctx, e.tools.PlainText, src, from)
		if err != nil {
			return failed(ErrExtraction, "could not extract text from %s: %v", filename, err)
		}
		content = &DocumentContent{
			FullText: text,
			Chunks:   ChunkText(text, "paragraph", size, overlap),
		}
	}

	meta.WordCount = intPtr(wordCount(content.FullText))
	return succeeded(meta, content, warnings)
}

func docxContent(doc *docxDocument, size, overlap int) *DocumentContent {
	content := &DocumentContent{}
	var (
		paragraphs []string
		heading    string
	)
	// sections group paragraphs under the heading in force
	type section struct {
		heading string
		parts   []string
	}
	var sections []section

	for _, p := range doc.paragraphs {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		if p.heading {
			heading = text
		}
		paragraphs = append(paragraphs, text)
		content.Chunks = append(content.Chunks, TextChunk{
			Content: text,
			Source:  fmt.Sprintf("paragraph_%d", len(content.Chunks)),
			Heading: heading,
		})
		if len(sections) == 0 || sections[len(sections)-1].heading != heading {
			sections = append(sections, section{heading: heading})
		}
		last := &sections[len(sections)-1]
		last.parts = append(last.parts, text)
	}
	content.FullText = strings.Join(paragraphs, "\n\n")

	if size > 0 {
		var chunks []TextChunk
		for _, s := range sections {
			for _, c := range ChunkText(strings.Join(s.parts, "\n\n"), "chunk", size, overlap) {
				c.Heading = s.heading
				chunks = append(chunks, c)
			}
		}
		for i := range chunks {
			chunks[i].Source = fmt.Sprintf("chunk_%d", i)
		}
		content.Chunks = chunks
	}

	for i, rows := range doc.tables {
		if len(rows) == 0 {
			continue
		}
		content.Tables = append(content.Tables, Table{Source: fmt.Sprintf("table_%d", i), Index: i, Rows: rows})
	}
	return content
}

func parseDocx(pkg *ooxmlPackage) (*docxDocument, error) {
	body, err := pkg.read("word/document.xml")
	if err != nil {
		return nil, err
	}
	headingStyles := docxHeadingStyles(pkg)

	doc := &docxDocument{}
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "p":
			text, style, err := readDocxParagraph(dec)
			if err != nil {
				return nil, err
			}
			doc.paragraphs = append(doc.paragraphs, docxParagraph{text: text, heading: headingStyles.isHeading(style)})
		case "tbl":
			rows, err := readDocxTable(dec)
			if err != nil {
				return nil, err
			}
			doc.tables = append(doc.tables, rows)
		}
	}
	return doc, nil
}

// readDocxParagraph consumes tokens up to the end of the current w:p.
func readDocxParagraph(dec *xml.Decoder) (string, string, error) {
	var (
		b      strings.Builder
		style  string
		inText bool
		depth  = 1
	)
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", "", fmt.Errorf("decode paragraph: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), style, nil
}

// readDocxTable consumes tokens up to the end of the current w:tbl. Nested
// tables are flattened into the enclosing cell.
func readDocxTable(dec *xml.Decoder) ([][]string, error) {
	var (
		rows  [][]string
		row   []string
		cell  []string
		depth = 1
		level = 0
	)
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode table: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				level++
				depth++
			case "tr":
				depth++
				if level == 0 {
					row = nil
				}
			case "tc":
				depth++
				if level == 0 {
					cell = nil
				}
			case "p":
				text, _, err := readDocxParagraph(dec)
				if err != nil {
					return nil, err
				}
				if text = strings.TrimSpace(text); text != "" {
					cell = append(cell, text)
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "tbl":
				if level > 0 {
					level--
				}
			case "tc":
				if level == 0 {
					row = append(row, strings.Join(cell, "\n"))
				}
			case "tr":
				if level == 0 && len(row) > 0 {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

type headingStyleSet map[string]bool

func (h headingStyleSet) isHeading(styleID string) bool {
	if styleID == "" {
		return false
	}
	if v, ok := h[styleID]; ok {
		return v
	}
	return strings.HasPrefix(strings.ToLower(styleID), "heading")
}

// docxHeadingStyles maps style ids to whether their display name starts with "Heading".
func docxHeadingStyles(pkg *ooxmlPackage) headingStyleSet {
	set := headingStyleSet{}
	b, err := pkg.read("word/styles.xml")
	if err != nil {
		return set
	}
	var styles struct {
		Styles []struct {
			ID   string `xml:"styleId,attr"`
			Name struct {
				Val string `xml:"val,attr"`
			} `xml:"name"`
		} `xml:"style"`
	}
	if err := xml.Unmarshal(b, &styles); err != nil {
		return set
	}
	for _, s := range styles.Styles {
		if s.ID == "" {
			continue
		}
		set[s.ID] = strings.HasPrefix(strings.ToLower(s.Name.Val), "heading")
	}
	return set
}

func convertLegacy(ctx context.Context, conv Converter, data []byte, from, to FormatTag) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("%w: no converter for %s", ErrConversionUnsupported, from)
	}
	out, err := conv.Convert(ctx, data, from, to)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("converter produced no output for %s", from)
	}
	return out, nil
}

func plainText(ctx context.Context, conv Converter, data []byte, from FormatTag) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("%w: no text converter for %s", ErrConversionUnsupported, from)
	}
	out, err := conv.Convert(ctx, data, from, TagTxt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", fmt.Errorf("no text produced for %s", from)
	}
	return text, nil
}
