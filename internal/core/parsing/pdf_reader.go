package parsing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"
)

// PDFInfo is the document information dictionary plus the page count.
type PDFInfo struct {
	PageCount    int
	Title        string
	Author       string
	Subject      string
	CreationDate string
	ModDate      string
}

// PDFTextRun is one positioned piece of page text in PDF points, with Y
// measured from the bottom of the page.
type PDFTextRun struct {
	Text          string
	X, Y          float64
	Width, Height float64
}

// PDFReader extracts layout-preserving per-page text, positioned text runs
// and document info.
type PDFReader interface {
	Pages(ctx context.Context, data []byte) ([]string, error)
	Runs(ctx context.Context, data []byte) ([][]PDFTextRun, error)
	Info(ctx context.Context, data []byte) (PDFInfo, error)
}

type tabulaReader struct{}

// NewTabulaReader returns a PDFReader backed by the pure Go tabula library.
func NewTabulaReader() PDFReader { return tabulaReader{} }

func (tabulaReader) Pages(ctx context.Context, data []byte) ([]string, error) {
	var pages []string
	err := withTempPDF(data, func(path string) error {
		ext := tabula.Open(path)
		n, err := ext.PageCount()
		_ = ext.Close()
		if err != nil {
			return fmt.Errorf("page count: %w", err)
		}
		pages = make([]string, 0, n)
		for p := 1; p <= n; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			pageText, _, err := tabula.Open(path).Pages(p).PreserveLayout().Text()
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			pages = append(pages, pageText)
		}
		return nil
	})
	return pages, err
}

func (tabulaReader) Runs(ctx context.Context, data []byte) ([][]PDFTextRun, error) {
	var pages [][]PDFTextRun
	err := withTempPDF(data, func(path string) error {
		ext := tabula.Open(path)
		n, err := ext.PageCount()
		_ = ext.Close()
		if err != nil {
			return fmt.Errorf("page count: %w", err)
		}
		pages = make([][]PDFTextRun, 0, n)
		for p := 1; p <= n; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			frags, _, err := tabula.Open(path).Pages(p).Fragments()
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			pages = append(pages, textRuns(frags))
		}
		return nil
	})
	return pages, err
}

func textRuns(frags []text.TextFragment) []PDFTextRun {
	runs := make([]PDFTextRun, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		runs = append(runs, PDFTextRun{Text: f.Text, X: f.X, Y: f.Y, Width: f.Width, Height: f.Height})
	}
	return runs
}

func (tabulaReader) Info(_ context.Context, data []byte) (PDFInfo, error) {
	var info PDFInfo
	err := withTempPDF(data, func(path string) error {
		r, err := reader.Open(path)
		if err != nil {
			return fmt.Errorf("open pdf: %w", err)
		}
		defer r.Close()

		if info.PageCount, err = r.PageCount(); err != nil {
			return fmt.Errorf("page count: %w", err)
		}
		dict, err := r.GetInfo()
		if err != nil || dict == nil {
			return nil
		}
		info.Title = infoString(dict, "Title")
		info.Author = infoString(dict, "Author")
		info.Subject = infoString(dict, "Subject")
		info.CreationDate = infoString(dict, "CreationDate")
		info.ModDate = infoString(dict, "ModDate")
		return nil
	})
	return info, err
}

func infoString(d core.Dict, key string) string {
	s, ok := d.GetString(key)
	if !ok {
		return ""
	}
	return decodePDFString(string(s))
}

func withTempPDF(data []byte, fn func(path string) error) error {
	dir, err := os.MkdirTemp("", "docsift-pdf-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write temp pdf: %w", err)
	}
	return fn(path)
}
