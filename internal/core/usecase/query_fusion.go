package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const defaultRRFK = 60

// FusionWeights scale each list's reciprocal-rank contribution.
type FusionWeights struct {
	Vector  float64
	Lexical float64
}

func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Vector: 0.5, Lexical: 0.5}
}

type fusedCandidate struct {
	candidate  domain.RankedCandidate
	score      float64
	inVector   bool
	inLexical  bool
	firstOrder int
}

// fuseRRF merges two ranked lists by weighted reciprocal rank. A candidate found
// in both lists sums both contributions and is tagged hybrid.
func fuseRRF(vector, lexical []domain.RankedCandidate, weights FusionWeights, rrfK int) []domain.RankedCandidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(vector)+len(lexical))
	addList := func(list []domain.RankedCandidate, weight float64, fromVector bool) {
		for rank, c := range list {
			key := candidateKey(c)
			entry, ok := acc[key]
			if !ok {
				entry = &fusedCandidate{candidate: c, firstOrder: len(acc)}
				acc[key] = entry
			} else {
				entry.candidate = mergeCandidate(entry.candidate, c)
			}
			entry.score += weight / float64(rrfK+rank+1)
			if fromVector {
				entry.inVector = true
			} else {
				entry.inLexical = true
			}
		}
	}

	addList(vector, weights.Vector, true)
	addList(lexical, weights.Lexical, false)

	out := make([]domain.RankedCandidate, 0, len(acc))
	for _, entry := range acc {
		c := entry.candidate
		c.FusedScore = entry.score
		switch {
		case entry.inVector && entry.inLexical:
			c.Source = domain.SourceHybrid
		case entry.inVector:
			c.Source = domain.SourceVector
		default:
			c.Source = domain.SourceLexical
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].PointID < out[j].PointID
	})
	return out
}

func trimCandidates(candidates []domain.RankedCandidate, limit int) []domain.RankedCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// candidateKey identifies a fragment across retrieval backends.
func candidateKey(c domain.RankedCandidate) string {
	if c.DocumentID != "" && c.ChunkIndex >= 0 {
		return fmt.Sprintf("%s:%d", c.DocumentID, c.ChunkIndex)
	}
	if c.PointID != "" {
		return "point:" + c.PointID
	}
	sum := sha256.Sum256([]byte(c.Text))
	return "text:" + hex.EncodeToString(sum[:])
}

// mergeCandidate keeps current and fills what only candidate knows.
func mergeCandidate(current, candidate domain.RankedCandidate) domain.RankedCandidate {
	if current.VectorScore == nil {
		current.VectorScore = candidate.VectorScore
	}
	if current.LexicalScore == nil {
		current.LexicalScore = candidate.LexicalScore
	}
	if current.PointID == "" {
		current.PointID = candidate.PointID
	}
	if current.Text == "" {
		current.Text = candidate.Text
	}
	if current.Filename == "" {
		current.Filename = candidate.Filename
	}
	if current.SectionTitle == "" {
		current.SectionTitle = candidate.SectionTitle
	}
	if current.PageNumber == 0 {
		current.PageNumber = candidate.PageNumber
	}
	if current.TenantID == "" {
		current.TenantID = candidate.TenantID
	}
	if current.ContentHash == "" {
		current.ContentHash = candidate.ContentHash
	}
	return current
}
