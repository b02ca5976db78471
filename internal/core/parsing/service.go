package parsing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

// Service is the parsing facade: it resolves the extractor, applies default
// chunk parameters and records timing.
type Service struct {
	registry       *Registry
	defaultSize    int
	defaultOverlap int
}

// NewService falls back to DefaultChunkSize/DefaultChunkOverlap for
// non-positive defaults.
func NewService(registry *Registry, defaultSize, defaultOverlap int) *Service {
	if defaultSize <= 0 {
		defaultSize = DefaultChunkSize
	}
	if defaultOverlap < 0 {
		defaultOverlap = DefaultChunkOverlap
	}
	return &Service{registry: registry, defaultSize: defaultSize, defaultOverlap: defaultOverlap}
}

// Parse extracts data named filename. Nil size or overlap take the service defaults.
func (s *Service) Parse(ctx context.Context, data []byte, filename string, size, overlap *int) *ParserResult {
	start := time.Now()
	logger := logging.FromContext(ctx)

	tag := Detect(filename)
	extractor, ok := s.registry.Resolve(tag)
	if !ok {
		res := failed(ErrUnsupportedFormat, "Unsupported file type: %s", tag)
		res.ProcessingTime = time.Since(start)
		return res
	}

	chunkSize, chunkOverlap := s.defaultSize, s.defaultOverlap
	if size != nil {
		chunkSize = *size
	}
	if overlap != nil {
		chunkOverlap = *overlap
	}

	res := extractor.Extract(ctx, data, filename, chunkSize, chunkOverlap)
	if res == nil {
		res = failed(ErrExtraction, "extractor returned no result")
	}
	res.ProcessingTime = time.Since(start)

	if res.Success {
		logger.Debug("document parsed",
			zap.String("filename", filename),
			zap.String("file_type", string(tag)),
			zap.Int("chunks", len(res.Content.Chunks)),
			zap.Int("warnings", len(res.Warnings)),
			zap.Duration("took", res.ProcessingTime))
	} else {
		logger.Warn("document parse failed",
			zap.String("filename", filename),
			zap.String("file_type", string(tag)),
			zap.String("error", res.Error))
	}
	return res
}

// IsSupported reports whether filename maps to a registered extractor.
func (s *Service) IsSupported(filename string) bool {
	return s.registry.Supports(Detect(filename))
}

// SupportedExtensions lists the registered extensions with a leading dot.
func (s *Service) SupportedExtensions() []string {
	tags := s.registry.SupportedTags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "." + string(t)
	}
	return out
}

// FileType is a convenience wrapper around Detect.
func (s *Service) FileType(filename string) FormatTag {
	return Detect(strings.TrimSpace(filename))
}
