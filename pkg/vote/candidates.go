package vote

// Dedup removes exact-text duplicates, keeping first-occurrence order.
func Dedup(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Choose returns the index of the highest score.
// Ties go to the lowest original index. It returns -1 for no scores.
func Choose(scores Scores) int {
	best := -1
	for i, s := range scores {
		if best == -1 || s > scores[best] {
			best = i
		}
	}
	return best
}
