package parsing

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

type officeSlideExtractor struct {
	tools Toolchain
}

// NewOfficeSlideExtractor handles pptx and legacy ppt files. A ppt that
// cannot be converted fails outright.
func NewOfficeSlideExtractor(tools Toolchain) Extractor {
	return &officeSlideExtractor{tools: tools}
}

func (e *officeSlideExtractor) Tags() []FormatTag { return []FormatTag{TagPptx, TagPpt} }

type slide struct {
	number int
	title  string
	lines  []string
	tables [][][]string
}

func (e *officeSlideExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	tag := Detect(filename)
	meta := newMetadata(data, filename, tag)

	pptxBytes := data
	if tag == TagPpt {
		converted, err := convertLegacy(ctx, e.tools.Legacy, data, TagPpt, TagPptx)
		if err != nil {
			logging.FromContext(ctx).Warn("ppt conversion failed", zap.String("filename", filename), zap.Error(err))
			return failed(ErrExtraction, "Cannot parse .ppt format without LibreOffice")
		}
		pptxBytes = converted
	}

	pkg, err := openOOXML(pptxBytes)
	if err != nil {
		return failed(ErrExtraction, "could not read presentation: %v", err)
	}
	slides, err := parseSlides(pkg)
	if err != nil {
		return failed(ErrExtraction, "could not read presentation: %v", err)
	}
	pkg.applyCoreProperties(meta)
	meta.SlideCount = intPtr(len(slides))

	content := &DocumentContent{}
	var parts []string
	for _, s := range slides {
		if len(s.lines) == 0 {
			continue
		}
		text := strings.Join(s.lines, "\n")
		parts = append(parts, fmt.Sprintf("[Slide %d]\n%s", s.number, text))
		content.Chunks = append(content.Chunks,
			splitUnit(text, fmt.Sprintf("slide_%d", s.number), s.title, s.number, size, overlap)...)
		for _, rows := range s.tables {
			content.Tables = append(content.Tables, Table{
				Source: fmt.Sprintf("slide_%d", s.number),
				Index:  len(content.Tables),
				Rows:   rows,
			})
		}
	}
	content.FullText = strings.Join(parts, "\n\n")
	meta.WordCount = intPtr(wordCount(content.FullText))

	return succeeded(meta, content, nil)
}

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

func parseSlides(pkg *ooxmlPackage) ([]slide, error) {
	names := slideOrder(pkg)
	if len(names) == 0 {
		return nil, errors.New("no slides found")
	}

	slides := make([]slide, 0, len(names))
	for i, name := range names {
		b, err := pkg.read(name)
		if err != nil {
			return nil, err
		}
		s, err := parseSlide(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// slide labels follow presentation order, not file names
		s.number = i + 1
		slides = append(slides, s)
	}
	return slides, nil
}

// slideOrder lists slide parts in presentation order: the sldIdLst of
// ppt/presentation.xml resolved through its relationships. Packages without
// a usable list fall back to the number in each slide's file name.
func slideOrder(pkg *ooxmlPackage) []string {
	if names := listedSlides(pkg); len(names) > 0 {
		return names
	}

	type entry struct {
		name   string
		number int
	}
	var entries []entry
	for _, name := range pkg.names() {
		m := slidePath.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		entries = append(entries, entry{name: name, number: n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].number < entries[j].number })

	names := make([]string, 0, len(entries))
	for _, en := range entries {
		names = append(names, en.name)
	}
	return names
}

func listedSlides(pkg *ooxmlPackage) []string {
	b, err := pkg.read("ppt/presentation.xml")
	if err != nil {
		return nil
	}
	var pres presentationXML
	if err := xml.Unmarshal(b, &pres); err != nil {
		return nil
	}
	rb, err := pkg.read("ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil
	}
	var rels relationshipsXML
	if err := xml.Unmarshal(rb, &rels); err != nil {
		return nil
	}
	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targets[r.ID] = r.Target
	}

	present := map[string]bool{}
	for _, name := range pkg.names() {
		present[name] = true
	}
	var names []string
	for _, id := range pres.SlideIDs {
		target := targets[id.RID]
		if target == "" {
			continue
		}
		name := strings.TrimPrefix(target, "/")
		if !strings.HasPrefix(target, "/") {
			name = path.Join("ppt", target)
		}
		if present[name] {
			names = append(names, name)
		}
	}
	return names
}

// parseSlide walks one slide in shape order. Text-frame paragraphs become
// lines; each table row becomes one line of cells joined with " | ".
func parseSlide(b []byte) (slide, error) {
	var (
		s          slide
		para       strings.Builder
		inText     bool
		inPara     bool
		titleShape bool
		tableDepth int
		table      [][]string
		row        []string
		cell       []string
	)
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("decode slide: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				titleShape = false
			case "ph":
				if ty := attr(t, "type"); ty == "title" || ty == "ctrTitle" {
					titleShape = true
				}
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell = nil
				}
			case "p":
				inPara = true
				para.Reset()
			case "t":
				inText = inPara
			case "br":
				if inPara {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara = false
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tableDepth > 0 {
					cell = append(cell, text)
					continue
				}
				s.lines = append(s.lines, text)
				if titleShape && s.title == "" {
					s.title = text
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.Join(cell, "\n"))
				}
			case "tr":
				if tableDepth == 1 && len(row) > 0 {
					table = append(table, row)
					s.lines = append(s.lines, strings.Join(row, " | "))
				}
			case "tbl":
				if tableDepth == 1 && len(table) > 0 {
					s.tables = append(s.tables, table)
				}
				if tableDepth > 0 {
					tableDepth--
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return s, nil
}
