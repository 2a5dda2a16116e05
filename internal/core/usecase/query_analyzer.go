package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const (
	minRecommendedK = 3
	maxRecommendedK = 15
)

var baseK = map[domain.QueryType]int{
	domain.QueryTypeSimple:     3,
	domain.QueryTypeComplex:    10,
	domain.QueryTypeProcedural: 7,
	domain.QueryTypeGeneral:    5,
}

type queryPattern struct {
	queryType domain.QueryType
	patterns  []*regexp.Regexp
}

// QueryAnalyzer classifies questions and recommends how many fragments to retrieve.
// It is stateless and safe for concurrent use.
type QueryAnalyzer struct {
	patterns     []queryPattern
	conjunctions map[string]struct{}
	comparison   *regexp.Regexp
}

func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{
		patterns: []queryPattern{
			{queryType: domain.QueryTypeSimple, patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(o que é|quem é|quando|onde|qual)`),
				regexp.MustCompile(`^(what is|who is|when|where|which)`),
			}},
			{queryType: domain.QueryTypeComplex, patterns: []*regexp.Regexp{
				regexp.MustCompile(`(compare|diferença|todos|liste|enumere)`),
				regexp.MustCompile(`(compare|difference|all|list|enumerate)`),
			}},
			{queryType: domain.QueryTypeProcedural, patterns: []*regexp.Regexp{
				regexp.MustCompile(`(como|passo a passo|processo|procedimento)`),
				regexp.MustCompile(`(how|step by step|process|procedure)`),
			}},
		},
		conjunctions: wordSet("e", "ou", "mas", "and", "or", "but"),
		comparison:   regexp.MustCompile(`(compare|diferença|difference|versus|vs)`),
	}
}

func (a *QueryAnalyzer) Analyze(query string) domain.QueryAnalysis {
	normalized := strings.ToLower(strings.TrimSpace(query))
	queryType := a.classify(normalized)
	wordCount := len(strings.Fields(normalized))

	return domain.QueryAnalysis{
		QueryType:       queryType,
		RecommendedK:    recommendK(queryType, wordCount),
		ComplexityScore: a.complexity(normalized, wordCount),
	}
}

func (a *QueryAnalyzer) classify(normalized string) domain.QueryType {
	for _, group := range a.patterns {
		for _, re := range group.patterns {
			if re.MatchString(normalized) {
				return group.queryType
			}
		}
	}
	return domain.QueryTypeGeneral
}

func recommendK(queryType domain.QueryType, wordCount int) int {
	k := baseK[queryType]
	if wordCount > 15 {
		k += 2
	}
	if wordCount > 25 {
		k += 4
	}
	if k > maxRecommendedK {
		k = maxRecommendedK
	}
	if k < minRecommendedK {
		k = minRecommendedK
	}
	return k
}

func (a *QueryAnalyzer) complexity(normalized string, wordCount int) float64 {
	score := 0.0
	if wordCount > 10 {
		score += 0.2
	}
	if wordCount > 20 {
		score += 0.2
	}
	if strings.Count(normalized, "?") > 1 {
		score += 0.2
	}
	score += math.Min(0.1*float64(countIn(words(normalized), a.conjunctions)), 0.3)
	if a.comparison.MatchString(normalized) {
		score += 0.2
	}
	return math.Min(math.Round(score*100)/100, 1.0)
}
