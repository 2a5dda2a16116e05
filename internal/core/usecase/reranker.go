package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

// Reranker orders candidates by a cross-encoder relevance score.
type Reranker struct {
	encoder ports.CrossEncoder
}

func NewReranker(encoder ports.CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Rerank scores every candidate, drops those below threshold and returns at most
// topK in descending score order.
func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	candidates []domain.RankedCandidate,
	topK int,
	threshold float64,
) ([]domain.RankedCandidate, error) {
	out := make([]domain.RankedCandidate, 0, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Text
	}
	scores, err := r.encoder.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("score candidates: got %d scores for %d candidates", len(scores), len(candidates))
	}

	for i, c := range candidates {
		score := scores[i]
		if score < threshold {
			continue
		}
		c.RerankScore = &score
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	return trimCandidates(out, topK), nil
}

// RerankPercentile scores the whole pool and keeps candidates at or above the
// given percentile of its score distribution, and never below floor.
func (r *Reranker) RerankPercentile(
	ctx context.Context,
	query string,
	candidates []domain.RankedCandidate,
	topK int,
	percentile float64,
	floor float64,
) ([]domain.RankedCandidate, error) {
	scored, err := r.Rerank(ctx, query, candidates, len(candidates), math.Inf(-1))
	if err != nil {
		return nil, err
	}
	cutoff := math.Max(DynamicThreshold(scored, percentile), floor)
	out := make([]domain.RankedCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score() >= cutoff {
			out = append(out, c)
		}
	}
	return trimCandidates(out, topK), nil
}

// DynamicThreshold returns the score at percentile (0..1) of the ascending score
// distribution, or 0 when the percentile falls outside it.
func DynamicThreshold(candidates []domain.RankedCandidate, percentile float64) float64 {
	if len(candidates) == 0 || percentile < 0 {
		return 0
	}
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score()
	}
	sort.Float64s(scores)
	idx := int(float64(len(scores)) * percentile)
	if idx >= len(scores) {
		return 0
	}
	return scores[idx]
}
