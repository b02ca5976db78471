package parsing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
)

// ErrConversionUnsupported is returned by a Converter asked for a pair it does not handle.
var ErrConversionUnsupported = errors.New("conversion not supported")

// Converter turns bytes of one format into bytes of another, typically by
// driving an external tool. Implementations must not leave temporary files
// behind on any exit path.
type Converter interface {
	Convert(ctx context.Context, data []byte, from, to FormatTag) ([]byte, error)
}

// Toolchain groups the converters extractors depend on.
type Toolchain struct {
	// Legacy converts doc/ppt/xls to docx/pptx/xlsx.
	Legacy Converter
	// PlainText converts doc, rtf and pdf to plain text.
	PlainText Converter
	// PDF reads paged text and document info from PDF bytes.
	PDF PDFReader
}

// DefaultToolchain wires LibreOffice for legacy formats, pandoc then docconv
// for plain text, and the tabula reader for PDF.
func DefaultToolchain(timeout time.Duration) Toolchain {
	return Toolchain{
		Legacy:    NewSofficeConverter(timeout),
		PlainText: ChainConverters(NewPandocConverter(timeout), NewDocconvConverter()),
		PDF:       NewTabulaReader(),
	}
}

type chainConverter []Converter

// ChainConverters tries each converter in order and returns the first
// non-empty output.
func ChainConverters(cs ...Converter) Converter {
	return chainConverter(cs)
}

func (c chainConverter) Convert(ctx context.Context, data []byte, from, to FormatTag) ([]byte, error) {
	var errs []error
	for _, conv := range c {
		if conv == nil {
			continue
		}
		out, err := conv.Convert(ctx, data, from, to)
		if err == nil && len(bytes.TrimSpace(out)) > 0 {
			return out, nil
		}
		if err == nil {
			err = fmt.Errorf("empty output converting %s to %s", from, to)
		}
		if errors.Is(err, ErrConversionUnsupported) {
			continue
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrConversionUnsupported, from, to)
	}
	return nil, errors.Join(errs...)
}

// SofficeConverter drives LibreOffice in headless mode.
type SofficeConverter struct {
	Binary  string
	timeout time.Duration
}

var sofficeTimeouts = map[FormatTag]time.Duration{
	TagDoc: 60 * time.Second,
	TagPpt: 120 * time.Second,
	TagXls: 120 * time.Second,
}

var sofficeTargets = map[FormatTag]FormatTag{
	TagDoc: TagDocx,
	TagPpt: TagPptx,
	TagXls: TagXlsx,
}

// NewSofficeConverter uses per-format default timeouts unless timeout is positive.
func NewSofficeConverter(timeout time.Duration) *SofficeConverter {
	return &SofficeConverter{Binary: "soffice", timeout: timeout}
}

func (s *SofficeConverter) Convert(ctx context.Context, data []byte, from, to FormatTag) ([]byte, error) {
	if sofficeTargets[from] != to {
		return nil, fmt.Errorf("%w: soffice %s to %s", ErrConversionUnsupported, from, to)
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = sofficeTimeouts[from]
	}

	return withTempInput(data, from, func(dir, input string) ([]byte, error) {
		if _, err := runTool(ctx, timeout, s.Binary,
			"--headless", "--convert-to", string(to), "--outdir", dir, input); err != nil {
			return nil, err
		}
		out := strings.TrimSuffix(input, filepath.Ext(input)) + "." + string(to)
		b, err := os.ReadFile(out)
		if err != nil {
			return nil, fmt.Errorf("read converted file: %w", err)
		}
		return b, nil
	})
}

// PandocConverter renders rtf and docx as plain text.
type PandocConverter struct {
	Binary  string
	timeout time.Duration
}

func NewPandocConverter(timeout time.Duration) *PandocConverter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PandocConverter{Binary: "pandoc", timeout: timeout}
}

func (p *PandocConverter) Convert(ctx context.Context, data []byte, from, to FormatTag) ([]byte, error) {
	if to != TagTxt || (from != TagRTF && from != TagDocx) {
		return nil, fmt.Errorf("%w: pandoc %s to %s", ErrConversionUnsupported, from, to)
	}
	return withTempInput(data, from, func(_, input string) ([]byte, error) {
		return runTool(ctx, p.timeout, p.Binary, "-t", "plain", input)
	})
}

// DocconvConverter uses docconv's helpers, which in turn shell out to
// wvText/antiword (doc), unrtf (rtf) and pdftotext (pdf).
type DocconvConverter struct{}

func NewDocconvConverter() *DocconvConverter { return &DocconvConverter{} }

func (DocconvConverter) Convert(ctx context.Context, data []byte, from, to FormatTag) ([]byte, error) {
	if to != TagTxt {
		return nil, fmt.Errorf("%w: docconv %s to %s", ErrConversionUnsupported, from, to)
	}
	var mime string
	switch from {
	case TagDoc:
		mime = "application/msword"
	case TagRTF:
		mime = "application/rtf"
	case TagPDF:
		mime = "application/pdf"
	default:
		return nil, fmt.Errorf("%w: docconv %s to %s", ErrConversionUnsupported, from, to)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := docconv.Convert(bytes.NewReader(data), mime, false)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", from, err)
	}
	return []byte(res.Body), nil
}

func withTempInput(data []byte, tag FormatTag, fn func(dir, input string) ([]byte, error)) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docsift-convert-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input."+string(tag))
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	return fn(dir, input)
}

func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not available: %w", name, err)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s timed out after %s", name, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
