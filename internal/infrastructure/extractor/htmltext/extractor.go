// Package htmltext extracts readable text from HTML pages.
package htmltext

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()
	return ExtractText(reader)
}

var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true, atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Li: true,
	atom.Tr: true, atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.Pre: true, atom.Blockquote: true,
}

// ExtractText keeps one paragraph per block element. h1 and h2 are upper-cased
// so they read as section titles downstream.
func ExtractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse html", err)
	}

	paragraphs := make([]string, 0, 32)
	var current strings.Builder
	flush := func(upper bool) {
		text := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if text == "" {
			return
		}
		if upper {
			text = strings.ToUpper(text)
		}
		paragraphs = append(paragraphs, text)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			current.WriteString(n.Data)
			current.WriteByte(' ')
			return
		}
		isBlock := n.Type == html.ElementNode && blocks[n.DataAtom]
		if isBlock {
			flush(false)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			flush(n.DataAtom == atom.H1 || n.DataAtom == atom.H2)
		}
	}
	walk(root)
	flush(false)
	return strings.Join(paragraphs, "\n\n"), nil
}
