package services

import "strings"

// Similarity computes the token-set overlap (Jaccard index) between two
// texts: intersection size over union size of their lower-cased
// whitespace-split tokens. The score is symmetric, reflexive and in [0,1].
func Similarity(textA, textB string) float64 {
	tokensA := tokenSet(textA)
	tokensB := tokenSet(textB)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}

	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// CountWords returns the whitespace-delimited word count of a passage text
func CountWords(text string) int {
	return len(strings.Fields(text))
}
