package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const (
	defaultTopK         = 5
	candidateMultiplier = 4
)

const (
	StageVector   = "vector"
	StageLexical  = "lexical"
	StageFused    = "fused"
	StageReranked = "reranked"
)

type RetrievalOptions struct {
	HybridEnabled   bool
	RerankThreshold float64
	// RerankPercentile, when in (0,1), replaces the fixed cutoff with one taken
	// from the reranked pool; RerankThreshold still acts as a floor.
	RerankPercentile float64
	// DefaultTopK applies when a caller passes topK <= 0.
	DefaultTopK int
}

// HybridRetriever fans a query out to the vector store and the lexical index,
// fuses both rankings by RRF and reranks the fused pool.
type HybridRetriever struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
	lexical  ports.LexicalIndex
	reranker *Reranker
	opts     RetrievalOptions
	observer ports.RetrievalObserver
	logger   *slog.Logger
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
	reranker *Reranker,
	opts RetrievalOptions,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		reranker: reranker,
		opts:     opts,
		observer: observer,
		logger:   logger,
	}
}

func (h *HybridRetriever) Search(
	ctx context.Context,
	tenantID string,
	query string,
	topK int,
	weights FusionWeights,
	rrfK int,
) ([]domain.RankedCandidate, error) {
	if topK <= 0 {
		topK = h.opts.DefaultTopK
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if !h.opts.HybridEnabled || h.lexical == nil {
		hits, err := h.searchVector(ctx, tenantID, query, topK)
		if err != nil {
			return nil, err
		}
		h.observe(StageVector, len(hits))
		return hits, nil
	}

	initialK := topK * candidateMultiplier
	var vectorHits, lexicalHits []domain.RankedCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := h.searchVector(gctx, tenantID, query, initialK)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := h.lexical.Search(gctx, query, initialK, tenantID)
		if err != nil {
			h.logger.Warn("lexical search failed, continuing with vector results", "error", err)
			return nil
		}
		lexicalHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	h.observe(StageVector, len(vectorHits))
	h.observe(StageLexical, len(lexicalHits))

	fused := trimCandidates(fuseRRF(vectorHits, lexicalHits, weights, rrfK), initialK)
	h.observe(StageFused, len(fused))
	h.logger.Debug("hybrid candidates fused",
		"vector", len(vectorHits),
		"lexical", len(lexicalHits),
		"fused", len(fused),
	)

	if h.reranker == nil {
		return trimCandidates(fused, topK), nil
	}
	var reranked []domain.RankedCandidate
	var err error
	if p := h.opts.RerankPercentile; p > 0 && p < 1 {
		reranked, err = h.reranker.RerankPercentile(ctx, query, fused, topK, p, h.opts.RerankThreshold)
	} else {
		reranked, err = h.reranker.Rerank(ctx, query, fused, topK, h.opts.RerankThreshold)
	}
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	h.observe(StageReranked, len(reranked))
	return reranked, nil
}

func (h *HybridRetriever) searchVector(ctx context.Context, tenantID, query string, limit int) ([]domain.RankedCandidate, error) {
	queryVector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := h.vectors.Search(ctx, queryVector, limit, domain.SearchFilter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	for i := range hits {
		hits[i].Source = domain.SourceVector
		if hits[i].VectorScore != nil {
			hits[i].FusedScore = *hits[i].VectorScore
		}
	}
	return hits, nil
}

func (h *HybridRetriever) observe(stage string, n int) {
	if h.observer != nil {
		h.observer.ObserveRetrieval(stage, n)
	}
}
