// Package router picks a text extractor by MIME type or file extension.
package router

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

type Extractor struct {
	byExt    map[string]ports.TextExtractor
	byMime   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func New(fallback ports.TextExtractor) *Extractor {
	return &Extractor{
		byExt:    map[string]ports.TextExtractor{},
		byMime:   map[string]ports.TextExtractor{},
		fallback: fallback,
	}
}

// Register binds an extractor to extensions (".pdf") and MIME types.
func (e *Extractor) Register(extractor ports.TextExtractor, extensions []string, mimeTypes []string) *Extractor {
	for _, ext := range extensions {
		e.byExt[strings.ToLower(ext)] = extractor
	}
	for _, m := range mimeTypes {
		e.byMime[strings.ToLower(m)] = extractor
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	return e.pick(doc).Extract(ctx, doc)
}

func (e *Extractor) pick(doc *domain.Document) ports.TextExtractor {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(doc.MimeType, ";", 2)[0]))
	if ex, ok := e.byMime[mime]; ok {
		return ex
	}
	if ex, ok := e.byExt[strings.ToLower(filepath.Ext(doc.Filename))]; ok {
		return ex
	}
	return e.fallback
}
