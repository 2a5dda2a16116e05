package bm25

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const (
	k1 = 1.5
	b  = 0.75
)

// Index is an in-memory Okapi BM25 index. Every write rebuilds an immutable
// snapshot that is swapped in atomically, so searches see either the old or
// the new corpus.
type Index struct {
	logger *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	snap    *snapshot
}

type snapshot struct {
	fragments []domain.Fragment
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

type scoredDoc struct {
	pos   int
	score float64
}

func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{logger: logger, snap: buildSnapshot(nil)}
}

// Index replaces the whole corpus.
func (ix *Index) Index(_ context.Context, fragments []domain.Fragment) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	corpus := make([]domain.Fragment, len(fragments))
	copy(corpus, fragments)
	ix.swap(buildSnapshot(corpus))
	return nil
}

// Add appends fragments and rebuilds.
func (ix *Index) Add(_ context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cur := ix.current()
	corpus := make([]domain.Fragment, 0, len(cur.fragments)+len(fragments))
	corpus = append(corpus, cur.fragments...)
	corpus = append(corpus, fragments...)
	ix.swap(buildSnapshot(corpus))
	return nil
}

// Remove drops every fragment of a document and rebuilds.
func (ix *Index) Remove(_ context.Context, documentID string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cur := ix.current()
	corpus := make([]domain.Fragment, 0, len(cur.fragments))
	for _, f := range cur.fragments {
		if f.DocumentID != documentID {
			corpus = append(corpus, f)
		}
	}
	if len(corpus) == len(cur.fragments) {
		return nil
	}
	ix.swap(buildSnapshot(corpus))
	return nil
}

func (ix *Index) Len() int {
	return len(ix.current().fragments)
}

// Search ranks the whole corpus and then keeps the tenant's fragments.
// Fragments without a tenant are visible to every tenant.
func (ix *Index) Search(ctx context.Context, query string, topK int, tenantID string) ([]domain.RankedCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.RankedCandidate, 0)
	snap := ix.current()
	if len(snap.fragments) == 0 {
		ix.logger.Warn("lexical index is empty", "query_len", len(query))
		return out, nil
	}
	if topK <= 0 {
		return out, nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return out, nil
	}

	scored := make([]scoredDoc, 0, len(snap.fragments))
	for pos := range snap.fragments {
		if score := snap.score(pos, tokens); score > 0 {
			scored = append(scored, scoredDoc{pos: pos, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	for _, s := range scored {
		f := snap.fragments[s.pos]
		if tenantID != "" && f.TenantID != "" && f.TenantID != tenantID {
			continue
		}
		score := s.score
		out = append(out, domain.RankedCandidate{
			Fragment:     f,
			LexicalScore: &score,
			FusedScore:   score,
			Source:       domain.SourceLexical,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (ix *Index) current() *snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap
}

func (ix *Index) swap(next *snapshot) {
	ix.mu.Lock()
	ix.snap = next
	ix.mu.Unlock()
	ix.logger.Debug("lexical index rebuilt", "fragments", len(next.fragments), "terms", len(next.idf))
}

func buildSnapshot(fragments []domain.Fragment) *snapshot {
	n := len(fragments)
	s := &snapshot{
		fragments: fragments,
		termFreqs: make([]map[string]int, n),
		docLens:   make([]int, n),
	}

	docFreq := make(map[string]int, 256)
	total := 0
	for i, f := range fragments {
		tokens := Tokenize(f.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		s.termFreqs[i] = tf
		s.docLens[i] = len(tokens)
		total += len(tokens)
		for t := range tf {
			docFreq[t]++
		}
	}
	if n > 0 {
		s.avgDocLen = float64(total) / float64(n)
	}

	s.idf = make(map[string]float64, len(docFreq))
	for t, df := range docFreq {
		s.idf[t] = math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
	}
	return s
}

func (s *snapshot) score(pos int, queryTokens []string) float64 {
	tf := s.termFreqs[pos]
	norm := 1 - b
	if s.avgDocLen > 0 {
		norm += b * float64(s.docLens[pos]) / s.avgDocLen
	}
	var score float64
	for _, t := range queryTokens {
		freq := float64(tf[t])
		if freq == 0 {
			continue
		}
		score += s.idf[t] * freq * (k1 + 1) / (freq + k1*norm)
	}
	return score
}
