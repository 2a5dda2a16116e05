package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type lineKind int

const (
	lineBody lineKind = iota
	lineTitle
	lineSubtitle
)

// lineMatcher recognises one kind of structural line. Matchers are tried in order.
type lineMatcher struct {
	kind  lineKind
	match func(line string, hasTitle bool) bool
}

var sectionMatchers = []lineMatcher{
	{kind: lineTitle, match: isTitleLine},
	{kind: lineSubtitle, match: isSubtitleLine},
}

func classifyLine(line string, hasTitle bool) lineKind {
	for _, m := range sectionMatchers {
		if m.match(line, hasTitle) {
			return m.kind
		}
	}
	return lineBody
}

func isTitleLine(line string, _ bool) bool {
	n := utf8.RuneCountInString(line)
	return n > 3 && n < 100 && isUpper(line)
}

func isSubtitleLine(line string, hasTitle bool) bool {
	return !hasTitle && utf8.RuneCountInString(line) < 100 && strings.HasSuffix(line, ":")
}

// isUpper reports whether line has at least one cased letter and no lowercase ones.
func isUpper(line string) bool {
	cased := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

type section struct {
	title string
	body  string
}

// splitSections groups lines under the closest preceding title. Heading lines
// stay in the body as their own paragraph so their words remain searchable.
// Blank lines are kept so paragraph boundaries survive.
func splitSections(text string) []section {
	out := make([]section, 0, 4)
	current := section{}
	var body strings.Builder

	flush := func() {
		if strings.TrimSpace(body.String()) != "" {
			current.body = body.String()
			out = append(out, current)
		}
		body.Reset()
	}

	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, "\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			body.WriteByte('\n')
			continue
		}
		switch classifyLine(line, current.title != "") {
		case lineTitle:
			flush()
			current = section{title: line}
			body.WriteString(raw)
			body.WriteString(paragraphSep)
		case lineSubtitle:
			current.title = strings.TrimSpace(strings.TrimSuffix(line, ":"))
			body.WriteString(raw)
			body.WriteString(paragraphSep)
		default:
			body.WriteString(raw)
			body.WriteByte('\n')
		}
	}
	flush()
	return out
}
