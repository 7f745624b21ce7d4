package fuzzy

// LevenshteinDistance computes the Levenshtein edit distance between two strings.
// Insertions, deletions and substitutions all cost one edit.
func LevenshteinDistance(a, b string) int {
	runesA := []rune(a)
	runesB := []rune(b)

	if len(runesA) == 0 {
		return len(runesB)
	}
	if len(runesB) == 0 {
		return len(runesA)
	}

	// Two rows are enough; the full matrix is never read back.
	prev := make([]int, len(runesB)+1)
	curr := make([]int, len(runesB)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(runesA); i++ {
		curr[0] = i

		for j := 1; j <= len(runesB); j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}

			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[len(runesB)]
}

// Ratio returns the edit distance between a and b normalized by the longer
// of the two lengths. Identical strings (including two empty strings) score 0.
func Ratio(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 0
	}
	return float64(LevenshteinDistance(a, b)) / float64(maxLen)
}
