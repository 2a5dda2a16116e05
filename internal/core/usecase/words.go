package usecase

import (
	"strings"
	"unicode"
)

// words splits lowercased s into letter/digit runs. Unlike regexp \b it treats
// accented letters as word characters.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSet(list ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, w := range list {
		out[strings.ToLower(w)] = struct{}{}
	}
	return out
}

func containsAny(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func countIn(tokens []string, set map[string]struct{}) int {
	n := 0
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}
