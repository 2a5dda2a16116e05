package usecase

import (
	"unicode/utf8"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// fitContextBudget keeps the longest rank-order prefix whose texts fit in maxChars.
func fitContextBudget(candidates []domain.RankedCandidate, maxChars int) []domain.RankedCandidate {
	if maxChars <= 0 {
		return candidates
	}
	used := 0
	for i, c := range candidates {
		n := utf8.RuneCountInString(c.Text)
		if used+n > maxChars {
			return candidates[:i]
		}
		used += n
	}
	return candidates
}
