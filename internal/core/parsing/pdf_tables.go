package parsing

import (
	"strings"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/tables"
)

// detectTables runs tabula's geometric detector over one page of text runs.
// Grid rows and columns that hold no text are dropped; what is left must
// still be at least two by two.
func detectTables(runs []PDFTextRun) [][][]string {
	if len(runs) == 0 {
		return nil
	}
	detector := tables.GetDetector("geometric")
	if detector == nil {
		return nil
	}

	page := &model.Page{RawText: make([]model.TextFragment, 0, len(runs))}
	for _, r := range runs {
		page.RawText = append(page.RawText, model.TextFragment{
			Text:     r.Text,
			BBox:     model.BBox{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height},
			FontSize: r.Height,
		})
	}
	found, err := detector.Detect(page)
	if err != nil {
		return nil
	}

	var out [][][]string
	for _, t := range found {
		if rows := tableCells(t); len(rows) >= 2 && len(rows[0]) >= 2 {
			out = append(out, rows)
		}
	}
	return out
}

func tableCells(t *model.Table) [][]string {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	width := 0
	for _, row := range t.Rows {
		width = max(width, len(row))
	}
	used := make([]bool, width)
	for _, row := range t.Rows {
		for c, cell := range row {
			if strings.TrimSpace(cell.Text) != "" {
				used[c] = true
			}
		}
	}

	var rows [][]string
	for _, row := range t.Rows {
		var cells []string
		filled := false
		for c := range width {
			if !used[c] {
				continue
			}
			v := ""
			if c < len(row) {
				v = strings.TrimSpace(row[c].Text)
			}
			filled = filled || v != ""
			cells = append(cells, v)
		}
		if filled {
			rows = append(rows, cells)
		}
	}
	return rows
}
