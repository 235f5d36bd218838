package shards

import "strings"

// Jaccard computes token-set similarity between two texts: the size of the
// intersection of their lowercase word sets over the size of the union.
// Two empty texts are identical (1); one empty text matches nothing (0).
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(token, ".,!?;:\"'()")] = true
	}
	delete(set, "")
	return set
}
