package chunking

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var pageMarkerRe = regexp.MustCompile(`<<<PAGE_(\d+)>>>`)

const pageSnippetRunes = 50

type pageStart struct {
	offset int
	page   int
}

// stripPageMarkers removes page markers and returns where each page starts in the cleaned text.
func stripPageMarkers(text string) (string, []pageStart) {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	starts := make([]pageStart, 0, len(matches))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		page, err := strconv.Atoi(text[m[2]:m[3]])
		if err == nil {
			starts = append(starts, pageStart{offset: b.Len(), page: page})
		}
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), starts
}

// pageLocator maps fragment text back to the page covering its start. Lookups
// must be made in fragment order: the search cursor only moves forward.
type pageLocator struct {
	norm    string
	offsets []int
	starts  []pageStart
	cursor  int
}

func newPageLocator(cleaned string, starts []pageStart) *pageLocator {
	if len(starts) == 0 {
		return nil
	}
	var b strings.Builder
	b.Grow(len(cleaned))
	offsets := make([]int, 0, len(cleaned))
	inSpace := false
	for i, r := range cleaned {
		if unicode.IsSpace(r) {
			if !inSpace && b.Len() > 0 {
				b.WriteByte(' ')
				offsets = append(offsets, i)
			}
			inSpace = true
			continue
		}
		inSpace = false
		n, _ := b.WriteRune(r)
		for k := 0; k < n; k++ {
			offsets = append(offsets, i)
		}
	}
	return &pageLocator{norm: b.String(), offsets: offsets, starts: starts}
}

func (l *pageLocator) pageFor(text string) int {
	if l == nil {
		return 0
	}
	snippet := []rune(strings.Join(strings.Fields(text), " "))
	if len(snippet) > pageSnippetRunes {
		snippet = snippet[:pageSnippetRunes]
	}
	idx := strings.Index(l.norm[l.cursor:], string(snippet))
	if len(snippet) == 0 || idx < 0 {
		return 1
	}
	l.cursor += idx
	return l.pageAt(l.offsets[l.cursor])
}

func (l *pageLocator) pageAt(offset int) int {
	page := 1
	for _, s := range l.starts {
		if s.offset > offset {
			break
		}
		page = s.page
	}
	return page
}
