package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// SemanticChunker splits text at section, paragraph and sentence boundaries.
// Consecutive fragments of a section share an overlap tail; no fragment is
// longer than MaxSize+OverlapSize runes.
type SemanticChunker struct {
	MaxSize     int
	OverlapSize int
	MinSize     int
}

func NewSemanticChunker(maxSize, overlapSize, minSize int) *SemanticChunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlapSize < 0 {
		overlapSize = 0
	}
	if overlapSize >= maxSize {
		overlapSize = maxSize / 4
	}
	if minSize < 0 {
		minSize = 0
	}
	if minSize > maxSize {
		minSize = maxSize
	}
	return &SemanticChunker{
		MaxSize:     maxSize,
		OverlapSize: overlapSize,
		MinSize:     minSize,
	}
}

func (c *SemanticChunker) Chunk(text string) []domain.Fragment {
	out := make([]domain.Fragment, 0)
	if strings.TrimSpace(text) == "" {
		return out
	}

	cleaned, starts := stripPageMarkers(text)
	pages := newPageLocator(cleaned, starts)

	for _, sec := range splitSections(cleaned) {
		for _, body := range c.packSection(sec.body) {
			out = append(out, domain.Fragment{
				ChunkIndex:   len(out),
				Text:         body,
				SectionTitle: sec.title,
				PageNumber:   pages.pageFor(body),
				ContentHash:  ContentHash(body),
				CharCount:    utf8.RuneCountInString(body),
				WordCount:    len(strings.Fields(body)),
			})
		}
	}
	return out
}

// ContentHash is the hex sha256 of a fragment's text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *SemanticChunker) packSection(body string) []string {
	p := &packer{max: c.MaxSize, overlap: c.OverlapSize}
	for _, para := range paragraphRe.Split(body, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= c.MaxSize {
			p.add(para, paragraphSep)
			continue
		}
		for i, sentence := range splitSentences(para) {
			sep := sentenceSep
			if i == 0 {
				sep = paragraphSep
			}
			for j, piece := range splitWindows(sentence, c.MaxSize) {
				if j > 0 {
					sep = sentenceSep
				}
				p.add(piece, sep)
			}
		}
	}

	chunks := p.finish()
	if n := len(chunks); n > 0 && utf8.RuneCountInString(chunks[n-1]) < c.MinSize {
		chunks = chunks[:n-1]
	}
	return chunks
}

type packer struct {
	max     int
	overlap int
	current string
	size    int
	chunks  []string
}

func (p *packer) add(piece, sep string) {
	n := utf8.RuneCountInString(piece)
	if p.size == 0 {
		p.current, p.size = piece, n
		return
	}
	if p.size+len(sep)+n <= p.max {
		p.current += sep + piece
		p.size += len(sep) + n
		return
	}

	closed := p.current
	p.chunks = append(p.chunks, closed)

	budget := p.max + p.overlap - n - len(sep)
	if budget > p.overlap {
		budget = p.overlap
	}
	tail := overlapTail(closed, budget)
	if tail == "" {
		p.current, p.size = piece, n
		return
	}
	p.current = tail + sep + piece
	p.size = utf8.RuneCountInString(tail) + len(sep) + n
}

func (p *packer) finish() []string {
	if p.size > 0 {
		p.chunks = append(p.chunks, p.current)
		p.current, p.size = "", 0
	}
	return p.chunks
}

// overlapTail returns at most n trailing runes of text without a leading partial word.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	start := len(runes) - n
	if !unicode.IsSpace(runes[start-1]) {
		for start < len(runes) && !unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}

// splitSentences cuts after '.', '!' or '?' when whitespace follows.
func splitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// splitWindows cuts text longer than size at the last whitespace inside each window,
// or mid-word when a window has none.
func splitWindows(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start:end]); cut > 0 {
			end = start + cut
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
