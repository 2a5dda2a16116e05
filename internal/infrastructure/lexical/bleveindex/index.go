package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const (
	fieldText   = "text"
	fieldTenant = "tenant_id"
	// sharedTenant tags fragments that carry no tenant; they match every tenant filter.
	sharedTenant = "_shared"
)

var errClosed = errors.New("bleve index closed")

// Index is a lexical index backed by an in-memory bleve index. Writes go to
// bleve incrementally; Index swaps in a fresh bleve index. writeMu orders
// every writer, so an Add cannot land in an index that is about to be replaced.
type Index struct {
	logger *slog.Logger

	writeMu   sync.Mutex
	mu        sync.RWMutex
	idx       bleve.Index
	fragments map[string]domain.Fragment
}

func New(logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &Index{logger: logger, idx: idx, fragments: map[string]domain.Fragment{}}, nil
}

func newMemIndex() (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return idx, nil
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldText, bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt(fieldTenant, bleve.NewKeywordFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (ix *Index) Index(_ context.Context, fragments []domain.Fragment) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	next, err := newMemIndex()
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Fragment, len(fragments))
	if err := indexBatch(next, fragments, byID); err != nil {
		_ = next.Close()
		return err
	}

	ix.mu.Lock()
	prev := ix.idx
	if prev == nil {
		ix.mu.Unlock()
		_ = next.Close()
		return errClosed
	}
	ix.idx = next
	ix.fragments = byID
	ix.mu.Unlock()

	_ = prev.Close()
	return nil
}

func (ix *Index) Add(_ context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return errClosed
	}
	return indexBatch(ix.idx, fragments, ix.fragments)
}

func (ix *Index) Remove(_ context.Context, documentID string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return errClosed
	}

	batch := ix.idx.NewBatch()
	for id, f := range ix.fragments {
		if f.DocumentID == documentID {
			batch.Delete(id)
			delete(ix.fragments, id)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := ix.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve delete batch: %w", err)
	}
	return nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.fragments)
}

func (ix *Index) Search(ctx context.Context, text string, topK int, tenantID string) ([]domain.RankedCandidate, error) {
	out := make([]domain.RankedCandidate, 0)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.idx == nil || len(ix.fragments) == 0 {
		ix.logger.Warn("lexical index is empty", "query_len", len(text))
		return out, nil
	}
	if topK <= 0 {
		return out, nil
	}

	match := bleve.NewMatchQuery(text)
	match.SetField(fieldText)
	var q query.Query = match
	if tenantID != "" {
		own := bleve.NewTermQuery(tenantID)
		own.SetField(fieldTenant)
		shared := bleve.NewTermQuery(sharedTenant)
		shared.SetField(fieldTenant)
		q = bleve.NewConjunctionQuery(match, bleve.NewDisjunctionQuery(own, shared))
	}

	res, err := ix.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, topK, 0, false))
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	for _, hit := range res.Hits {
		if hit.Score <= 0 {
			continue
		}
		f, ok := ix.fragments[hit.ID]
		if !ok {
			continue
		}
		score := hit.Score
		out = append(out, domain.RankedCandidate{
			Fragment:     f,
			LexicalScore: &score,
			FusedScore:   score,
			Source:       domain.SourceLexical,
		})
	}
	return out, nil
}

func (ix *Index) Close() error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return nil
	}
	err := ix.idx.Close()
	ix.idx = nil
	ix.fragments = map[string]domain.Fragment{}
	return err
}

func indexBatch(idx bleve.Index, fragments []domain.Fragment, byID map[string]domain.Fragment) error {
	batch := idx.NewBatch()
	for _, f := range fragments {
		id := fragmentID(f)
		tenant := f.TenantID
		if tenant == "" {
			tenant = sharedTenant
		}
		if err := batch.Index(id, map[string]any{fieldText: f.Text, fieldTenant: tenant}); err != nil {
			return fmt.Errorf("bleve index fragment %s: %w", id, err)
		}
		byID[id] = f
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch: %w", err)
	}
	return nil
}

func fragmentID(f domain.Fragment) string {
	return fmt.Sprintf("%s:%d", f.DocumentID, f.ChunkIndex)
}
