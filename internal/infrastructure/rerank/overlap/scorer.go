// Package overlap scores passages against a query without a model: a prior from
// the incoming rank blended with query-token coverage and an exact phrase hit.
package overlap

import (
	"context"
	"strings"

	"github.com/kirillkom/company-rag/internal/infrastructure/lexical/bm25"
)

const (
	rankWeight    = 0.60
	overlapWeight = 0.30
	phraseWeight  = 0.10
)

type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score returns one value in [0,1] per passage. Passages are expected in their
// fused order; earlier passages receive a larger rank prior.
func (s *Scorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(passages))
	if len(passages) == 0 {
		return out, nil
	}

	queryTokens := tokenSet(query)
	phrase := strings.ToLower(strings.Join(strings.Fields(query), " "))
	n := float64(len(passages))
	for i, p := range passages {
		prior := 1 - float64(i)/n
		coverage := tokenOverlap(queryTokens, tokenSet(p))
		hit := 0.0
		if phrase != "" && strings.Contains(strings.ToLower(strings.Join(strings.Fields(p), " ")), phrase) {
			hit = 1
		}
		out[i] = rankWeight*prior + overlapWeight*coverage + phraseWeight*hit
	}
	return out, nil
}

func tokenOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func tokenSet(s string) map[string]struct{} {
	tokens := bm25.Tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}
