package parsing

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

type pdfExtractor struct {
	tools Toolchain
}

// NewPDFExtractor extracts per-page text and layout tables, falling back to a
// plain-text converter when the layout reader yields nothing.
func NewPDFExtractor(tools Toolchain) Extractor {
	return &pdfExtractor{tools: tools}
}

func (e *pdfExtractor) Tags() []FormatTag { return []FormatTag{TagPDF} }

func (e *pdfExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	logger := logging.FromContext(ctx)
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return failed(ErrExtraction, "not a PDF file")
	}

	meta := newMetadata(data, filename, TagPDF)
	var warnings []string

	// Metadata and text come from independent chains; either may succeed alone.
	info, infoSource := e.readInfo(ctx, data)
	meta.Custom["metadata_source"] = infoSource
	meta.Title, meta.Author, meta.Subject = info.Title, info.Author, info.Subject
	meta.CreatedAt = parsePDFDate(info.CreationDate)
	meta.ModifiedAt = parsePDFDate(info.ModDate)

	pages, textSource := e.readPages(ctx, data)
	if ctx.Err() != nil {
		return failed(ErrExtraction, "pdf extraction cancelled: %v", ctx.Err())
	}
	meta.Custom["text_source"] = textSource
	pageTables := e.readTables(ctx, data, textSource)

	content := &DocumentContent{Links: pdfAnnotationLinks(data)}
	var parts []string
	for i, page := range pages {
		text := strings.TrimSpace(page)
		if text == "" {
			continue
		}
		n := i + 1
		label := fmt.Sprintf("page_%d", n)
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", n, text))
		content.Chunks = append(content.Chunks, splitUnit(text, label, "", n, size, overlap)...)
		if i >= len(pageTables) {
			continue
		}
		for j, rows := range pageTables[i] {
			content.Tables = append(content.Tables, Table{Source: label, Index: j, Rows: rows})
		}
	}
	content.FullText = strings.Join(parts, "\n\n")

	pageCount := info.PageCount
	if pageCount == 0 {
		pageCount = len(pages)
	}
	if pageCount > 0 {
		meta.PageCount = intPtr(pageCount)
	}
	meta.WordCount = intPtr(wordCount(content.FullText))

	if len(content.Chunks) == 0 {
		warnings = append(warnings, "Could not extract text from PDF")
		logger.Warn("pdf yielded no text", zap.String("filename", filename))
	}
	return succeeded(meta, content, warnings)
}

func (e *pdfExtractor) readInfo(ctx context.Context, data []byte) (PDFInfo, string) {
	if e.tools.PDF != nil {
		info, err := e.tools.PDF.Info(ctx, data)
		if err == nil {
			return info, "reader"
		}
		logging.FromContext(ctx).Debug("pdf info via reader failed", zap.Error(err))
	}
	return scanPDFInfo(data), "raw"
}

func (e *pdfExtractor) readPages(ctx context.Context, data []byte) ([]string, string) {
	logger := logging.FromContext(ctx)
	if e.tools.PDF != nil {
		pages, err := e.tools.PDF.Pages(ctx, data)
		if err != nil {
			logger.Debug("pdf layout extraction failed", zap.Error(err))
		} else if hasText(pages) {
			return pages, "layout"
		}
	}
	if e.tools.PlainText == nil {
		return nil, "none"
	}
	out, err := e.tools.PlainText.Convert(ctx, data, TagPDF, TagTxt)
	if err != nil {
		logger.Debug("pdf plain text extraction failed", zap.Error(err))
		return nil, "none"
	}
	// pdftotext separates pages with form feeds unless told otherwise
	return strings.Split(string(out), "\f"), "plain"
}

// readTables detects tables on each page from positioned text runs. Pages
// that came from the plain-text fallback have no positions and no tables.
func (e *pdfExtractor) readTables(ctx context.Context, data []byte, textSource string) [][][][]string {
	if e.tools.PDF == nil || textSource != "layout" {
		return nil
	}
	runs, err := e.tools.PDF.Runs(ctx, data)
	if err != nil {
		logging.FromContext(ctx).Debug("pdf text runs unavailable", zap.Error(err))
		return nil
	}
	out := make([][][][]string, len(runs))
	for i, page := range runs {
		out[i] = detectTables(page)
	}
	return out
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// parsePDFDate parses the D:YYYYMMDDHHmmSS form, accepting any prefix from
// the year onward. Timezone suffixes are ignored.
func parsePDFDate(s string) *time.Time {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	digits := 0
	for digits < len(s) && digits < 14 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	layouts := map[int]string{
		4:  "2006",
		6:  "200601",
		8:  "20060102",
		10: "2006010215",
		12: "200601021504",
		14: "20060102150405",
	}
	layout, ok := layouts[digits]
	if !ok {
		return nil
	}
	t, err := time.Parse(layout, s[:digits])
	if err != nil {
		return nil
	}
	return &t
}

var (
	pdfURIPattern  = regexp.MustCompile(`/URI\s*\(((?:\\.|[^\\)])*)\)`)
	pdfPagePattern = regexp.MustCompile(`/Type\s*/Page[^s]`)
)

func pdfAnnotationLinks(data []byte) []string {
	var links []string
	for _, m := range pdfURIPattern.FindAllSubmatch(data, -1) {
		uri := strings.TrimSpace(unescapePDFLiteral(string(m[1])))
		if uri != "" {
			links = append(links, uri)
		}
	}
	return dedupe(links)
}

// scanPDFInfo reads uncompressed Info entries and page objects straight from
// the file bytes.
func scanPDFInfo(data []byte) PDFInfo {
	info := PDFInfo{PageCount: len(pdfPagePattern.FindAll(data, -1))}
	lookup := func(key string) string {
		re := regexp.MustCompile(`/` + key + `\s*\(((?:\\.|[^\\)])*)\)`)
		if m := re.FindSubmatch(data); m != nil {
			return decodePDFString(unescapePDFLiteral(string(m[1])))
		}
		return ""
	}
	info.Title = lookup("Title")
	info.Author = lookup("Author")
	info.Subject = lookup("Subject")
	info.CreationDate = lookup("CreationDate")
	info.ModDate = lookup("ModDate")
	return info
}

func unescapePDFLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 8)
			b.WriteByte(byte(n))
			i = j - 1
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodePDFString handles UTF-16BE text strings marked with a byte order mark.
func decodePDFString(s string) string {
	if len(s) < 2 || s[0] != 0xFE || s[1] != 0xFF {
		return s
	}
	raw := []byte(s[2:])
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return string(utf16.Decode(units))
}
