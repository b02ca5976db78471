package parsing

import (
	"context"
	"sort"
	"sync"
)

// Extractor turns raw bytes of the formats it owns into a ParserResult.
// A size <= 0 keeps the format's structural split (paragraph, slide, sheet,
// page); a positive size re-chunks with the sentence-aware chunker.
type Extractor interface {
	Tags() []FormatTag
	Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult
}

// Registry maps format tags to extractors. Later registrations replace earlier ones.
type Registry struct {
	mu         sync.RWMutex
	extractors map[FormatTag]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[FormatTag]Extractor)}
}

// NewDefaultRegistry registers every built-in extractor.
func NewDefaultRegistry(tools Toolchain) *Registry {
	r := NewRegistry()
	for _, e := range []Extractor{
		NewOfficeTextExtractor(tools),
		NewOfficeSlideExtractor(tools),
		NewOfficeSheetExtractor(tools),
		NewPDFExtractor(tools),
		NewTextExtractor(tools),
		NewEmailExtractor(),
	} {
		r.RegisterExtractor(e)
	}
	return r
}

// Register binds tag to e.
func (r *Registry) Register(tag FormatTag, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[tag] = e
}

// RegisterExtractor binds every tag e declares.
func (r *Registry) RegisterExtractor(e Extractor) {
	for _, tag := range e.Tags() {
		r.Register(tag, e)
	}
}

// Resolve returns the extractor for tag.
func (r *Registry) Resolve(tag FormatTag) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[tag]
	return e, ok
}

// ResolveForFilename composes Detect and Resolve.
func (r *Registry) ResolveForFilename(filename string) (Extractor, bool) {
	return r.Resolve(Detect(filename))
}

// Supports reports whether tag has a registered extractor.
func (r *Registry) Supports(tag FormatTag) bool {
	_, ok := r.Resolve(tag)
	return ok
}

// SupportedTags returns the registered tags in sorted order.
func (r *Registry) SupportedTags() []FormatTag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]FormatTag, 0, len(r.extractors))
	for tag := range r.extractors {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
