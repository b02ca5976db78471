package parsing

import (
	"errors"
	"fmt"
	"time"
)

// FormatTag is the closed classification of a file derived from its extension.
type FormatTag string

const (
	TagDocx FormatTag = "docx"
	TagDoc  FormatTag = "doc"
	TagPptx FormatTag = "pptx"
	TagPpt  FormatTag = "ppt"
	TagXlsx FormatTag = "xlsx"
	TagXls  FormatTag = "xls"
	TagCSV  FormatTag = "csv"
	TagPDF  FormatTag = "pdf"
	TagTxt  FormatTag = "txt"
	TagMd   FormatTag = "md"
	TagHTML FormatTag = "html"
	TagJSON FormatTag = "json"
	TagXML  FormatTag = "xml"
	TagRTF  FormatTag = "rtf"
	TagEML  FormatTag = "eml"

	// Recognized but without an extractor.
	TagMsg  FormatTag = "msg"
	TagPst  FormatTag = "pst"
	TagPng  FormatTag = "png"
	TagJpg  FormatTag = "jpg"
	TagJpeg FormatTag = "jpeg"
	TagTiff FormatTag = "tiff"
	TagOdt  FormatTag = "odt"
	TagOds  FormatTag = "ods"
	TagOdp  FormatTag = "odp"

	TagUnknown FormatTag = "unknown"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrDecode            = errors.New("could not decode content")
	ErrExtraction        = errors.New("extraction failed")
	ErrEmptyResult       = errors.New("no content extracted")
)

// DocumentMetadata describes one source file.
type DocumentMetadata struct {
	Filename   string         `json:"filename"`
	FileType   FormatTag      `json:"file_type"`
	FileSize   int64          `json:"file_size"`
	FileHash   string         `json:"file_hash"`
	Title      string         `json:"title,omitempty"`
	Author     string         `json:"author,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	ModifiedAt *time.Time     `json:"modified_at,omitempty"`
	PageCount  *int           `json:"page_count,omitempty"`
	WordCount  *int           `json:"word_count,omitempty"`
	SlideCount *int           `json:"slide_count,omitempty"`
	SheetCount *int           `json:"sheet_count,omitempty"`
	Custom     map[string]any `json:"custom,omitempty"`
}

// TextChunk is one retrievable unit of a document.
// PageNumber is zero when the format has no pages.
type TextChunk struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Heading    string `json:"heading,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

// Table is a list of rows of cell strings. Source names the page, slide,
// sheet or table it came from.
type Table struct {
	Source string     `json:"source"`
	Index  int        `json:"index"`
	Rows   [][]string `json:"rows"`
}

// Headers returns the first row, or nil for an empty table.
func (t Table) Headers() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// Body returns every row after the header row.
func (t Table) Body() [][]string {
	if len(t.Rows) < 2 {
		return nil
	}
	return t.Rows[1:]
}

// ColumnCount is the widest row in the table.
func (t Table) ColumnCount() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// DocumentContent is the aggregate extraction result for one file.
type DocumentContent struct {
	FullText string      `json:"full_text"`
	Chunks   []TextChunk `json:"chunks"`
	Tables   []Table     `json:"tables,omitempty"`
	Links    []string    `json:"links,omitempty"`
}

// ParserResult is returned by every extractor. Error is set iff Success is false.
type ParserResult struct {
	Success        bool              `json:"success"`
	Metadata       *DocumentMetadata `json:"metadata,omitempty"`
	Content        *DocumentContent  `json:"content,omitempty"`
	Error          string            `json:"error,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	ProcessingTime time.Duration     `json:"processing_time_ns"`

	kind error
}

// Err returns nil for a successful result and otherwise an error wrapping
// one of the package sentinels.
func (r *ParserResult) Err() error {
	if r == nil {
		return ErrExtraction
	}
	if r.Success {
		return nil
	}
	kind := r.kind
	if kind == nil {
		kind = ErrExtraction
	}
	return fmt.Errorf("%w: %s", kind, r.Error)
}

func failed(kind error, format string, args ...any) *ParserResult {
	return &ParserResult{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
		kind:    kind,
	}
}

// succeeded builds a success result, demoting it to an empty-result failure
// when no chunks were produced.
func succeeded(meta *DocumentMetadata, content *DocumentContent, warnings []string) *ParserResult {
	if content == nil || len(content.Chunks) == 0 {
		res := failed(ErrEmptyResult, "no content could be extracted")
		res.Warnings = warnings
		return res
	}
	Reindex(content.Chunks)
	content.Links = dedupe(content.Links)
	return &ParserResult{
		Success:  true,
		Metadata: meta,
		Content:  content,
		Warnings: warnings,
	}
}

func intPtr(n int) *int { return &n }

func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
