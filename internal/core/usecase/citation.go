package usecase

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// DefaultNoAnswerPhrases are abstention phrasings of the answer prompt. The list
// is not exhaustive; models that abstain in other words are reported as answered.
func DefaultNoAnswerPhrases() []string {
	return []string{
		"não encontrei",
		"não há informação",
		"não há informações",
		"não consta",
		"não foi encontrad",
		"não sei",
		"não tenho informação",
		"could not find",
		"couldn't find",
		"no information",
		"not found in the documents",
		"i don't know",
	}
}

type CitationExtractor struct {
	phrases []string
}

func NewCitationExtractor(phrases []string) *CitationExtractor {
	if len(phrases) == 0 {
		phrases = DefaultNoAnswerPhrases()
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &CitationExtractor{phrases: normalized}
}

func (e *CitationExtractor) Extract(answer string) domain.AnswerExtraction {
	seen := map[int]struct{}{}
	cited := make([]int, 0)
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		cited = append(cited, n)
	}
	sort.Ints(cited)

	return domain.AnswerExtraction{
		CitedIndices: cited,
		HasAnswer:    !e.isAbstention(answer),
	}
}

func (e *CitationExtractor) isAbstention(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range e.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// MarkCited flags sources referenced by 1-based citation numbers and returns the
// citations that point at an existing source.
func MarkCited(sources []domain.RankedCandidate, citations []int) []int {
	valid := make([]int, 0, len(citations))
	for _, n := range citations {
		if n < 1 || n > len(sources) {
			continue
		}
		sources[n-1].Cited = true
		valid = append(valid, n)
	}
	return valid
}
