package parsing

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

type officeSheetExtractor struct {
	tools Toolchain
}

// NewOfficeSheetExtractor handles xlsx, legacy xls and csv files.
func NewOfficeSheetExtractor(tools Toolchain) Extractor {
	return &officeSheetExtractor{tools: tools}
}

func (e *officeSheetExtractor) Tags() []FormatTag { return []FormatTag{TagXlsx, TagXls, TagCSV} }

type sheet struct {
	name string
	rows [][]string
}

func (e *officeSheetExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	tag := Detect(filename)
	if tag == TagCSV {
		return extractCSV(data, filename, size, overlap)
	}

	meta := newMetadata(data, filename, tag)
	sheets, pkg, warnings, err := e.readWorkbook(ctx, data, filename, tag)
	if err != nil {
		res := failed(ErrExtraction, "could not read spreadsheet: %v", err)
		res.Warnings = warnings
		return res
	}
	if pkg != nil {
		pkg.applyCoreProperties(meta)
	}
	meta.SheetCount = intPtr(len(sheets))

	content := &DocumentContent{}
	var parts []string
	for _, sh := range sheets {
		rows := nonEmptyRows(sh.rows)
		if len(rows) == 0 {
			continue
		}
		text := fmt.Sprintf("[Sheet: %s]\n%s", sh.name, renderRows(rows, false))
		parts = append(parts, text)
		label := "sheet_" + sh.name
		if size > 0 && len([]rune(text)) > size {
			for _, c := range ChunkLines(text, label, size, overlap) {
				c.Heading = sh.name
				content.Chunks = append(content.Chunks, c)
			}
		} else {
			content.Chunks = append(content.Chunks, TextChunk{Content: text, Source: label, Heading: sh.name})
		}
		content.Tables = append(content.Tables, Table{Source: label, Index: len(content.Tables), Rows: rows})
	}
	content.FullText = strings.Join(parts, "\n\n")
	meta.WordCount = intPtr(wordCount(content.FullText))

	return succeeded(meta, content, warnings)
}

// readWorkbook returns the sheets of an xlsx or xls file. Legacy workbooks go
// through the converter first; when that fails, binary workbooks are read
// directly and anything else is tried as a mislabelled xlsx. pkg is nil for
// the binary path.
func (e *officeSheetExtractor) readWorkbook(ctx context.Context, data []byte, filename string, tag FormatTag) (sheets []sheet, pkg *ooxmlPackage, warnings []string, err error) {
	xlsxBytes := data
	if tag == TagXls {
		converted, convErr := convertLegacy(ctx, e.tools.Legacy, data, TagXls, TagXlsx)
		switch {
		case convErr == nil:
			xlsxBytes = converted
		case isOLE(data):
			logging.FromContext(ctx).Info("xls conversion unavailable, reading workbook directly",
				zap.String("filename", filename), zap.Error(convErr))
			sheets, err = readBIFFSheets(data)
			return sheets, nil, nil, err
		default:
			logging.FromContext(ctx).Warn("xls conversion failed", zap.String("filename", filename), zap.Error(convErr))
			warnings = append(warnings, "Could not convert .xls to .xlsx")
		}
	}

	pkg, err = openOOXML(xlsxBytes)
	if err != nil {
		return nil, nil, warnings, err
	}
	sheets, err = parseWorkbook(pkg)
	if err != nil {
		return nil, nil, warnings, err
	}
	return sheets, pkg, warnings, nil
}

func extractCSV(data []byte, filename string, size, overlap int) *ParserResult {
	meta := newMetadata(data, filename, TagCSV)
	text, _, err := DecodeText(data)
	if err != nil {
		return failed(ErrDecode, "Could not decode CSV file")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return failed(ErrExtraction, "invalid CSV: %v", err)
	}
	if len(rows) == 0 {
		return failed(ErrEmptyResult, "Empty CSV file")
	}

	full := renderRows(rows, true)
	meta.Custom["row_count"] = len(rows)
	meta.Custom["column_count"] = len(rows[0])
	meta.WordCount = intPtr(wordCount(full))

	content := &DocumentContent{
		FullText: full,
		Chunks:   ChunkLines(full, "csv_chunk", size, overlap),
		Tables:   []Table{{Source: "data", Index: 0, Rows: rows}},
	}
	return succeeded(meta, content, nil)
}

// renderRows writes the header row then one "column: value" line per data
// row, skipping blank cells so every value keeps its column name.
func renderRows(rows [][]string, numbered bool) string {
	if len(rows) == 0 {
		return ""
	}
	header := rows[0]
	lines := []string{"Headers: " + strings.Join(header, " | ")}
	for i, row := range rows[1:] {
		var pairs []string
		for j, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			name := fmt.Sprintf("col_%d", j)
			if j < len(header) && strings.TrimSpace(header[j]) != "" {
				name = header[j]
			}
			pairs = append(pairs, name+": "+cell)
		}
		if len(pairs) == 0 {
			continue
		}
		line := strings.Join(pairs, ", ")
		if numbered {
			line = fmt.Sprintf("Row %d: %s", i+1, line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func nonEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, c := range row {
			if c != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

type workbookXML struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func parseWorkbook(pkg *ooxmlPackage) ([]sheet, error) {
	b, err := pkg.read("xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	var wb workbookXML
	if err := xml.Unmarshal(b, &wb); err != nil {
		return nil, fmt.Errorf("decode workbook.xml: %w", err)
	}

	targets := map[string]string{}
	if rb, err := pkg.read("xl/_rels/workbook.xml.rels"); err == nil {
		var rels relationshipsXML
		if err := xml.Unmarshal(rb, &rels); err == nil {
			for _, r := range rels.Relationships {
				targets[r.ID] = r.Target
			}
		}
	}

	shared, err := readSharedStrings(pkg)
	if err != nil {
		return nil, err
	}

	sheets := make([]sheet, 0, len(wb.Sheets))
	for i, s := range wb.Sheets {
		target := targets[s.RID]
		if target == "" {
			target = fmt.Sprintf("worksheets/sheet%d.xml", i+1)
		}
		name := target
		if !strings.HasPrefix(target, "/") {
			name = path.Join("xl", target)
		}
		sb, err := pkg.read(name)
		if err != nil {
			return nil, err
		}
		rows, err := parseSheetRows(sb, shared)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		sheets = append(sheets, sheet{name: s.Name, rows: rows})
	}
	return sheets, nil
}

func readSharedStrings(pkg *ooxmlPackage) ([]string, error) {
	b, err := pkg.read("xl/sharedStrings.xml")
	if errors.Is(err, errZipEntryMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		out    []string
		cur    strings.Builder
		inText bool
		inRPh  bool
	)
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode sharedStrings.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				cur.Reset()
			case "rPh":
				inRPh = true
			case "t":
				inText = !inRPh
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				out = append(out, cur.String())
			case "rPh":
				inRPh = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
}

type sheetXML struct {
	Rows []struct {
		Cells []struct {
			Ref    string `xml:"r,attr"`
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
				Runs []struct {
					Text string `xml:"t"`
				} `xml:"r"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func parseSheetRows(b []byte, shared []string) ([][]string, error) {
	var sx sheetXML
	if err := xml.Unmarshal(b, &sx); err != nil {
		return nil, fmt.Errorf("decode sheet: %w", err)
	}
	rows := make([][]string, 0, len(sx.Rows))
	for _, r := range sx.Rows {
		var row []string
		for i, c := range r.Cells {
			col := i
			if c.Ref != "" {
				if n, ok := columnIndex(c.Ref); ok {
					col = n
				}
			}
			var value string
			switch c.Type {
			case "s":
				if idx, err := strconv.Atoi(strings.TrimSpace(c.Value)); err == nil && idx >= 0 && idx < len(shared) {
					value = shared[idx]
				}
			case "b":
				value = "FALSE"
				if strings.TrimSpace(c.Value) == "1" {
					value = "TRUE"
				}
			case "inlineStr":
				value = c.Inline.Text
				for _, run := range c.Inline.Runs {
					value += run.Text
				}
			default:
				value = c.Value
			}
			for len(row) <= col {
				row = append(row, "")
			}
			row[col] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// maxSheetColumns is the last column Excel addresses (XFD).
const maxSheetColumns = 16384

// columnIndex converts the letters of a cell reference like "AB12" to a
// zero-based column. References past column XFD are rejected.
func columnIndex(ref string) (int, bool) {
	n := 0
	letters := 0
	for _, r := range ref {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r < 'A' || r > 'Z' {
			break
		}
		letters++
		if letters > 3 {
			return 0, false
		}
		n = n*26 + int(r-'A'+1)
	}
	if letters == 0 || n > maxSheetColumns {
		return 0, false
	}
	return n - 1, true
}
