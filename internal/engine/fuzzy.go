package engine

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// levenshteinDistance computes the edit distance between two strings,
// operating on runes with the two-row optimization.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len([]rune(b))
	}
	if len(b) == 0 {
		return len([]rune(a))
	}

	runesA := []rune(a)
	runesB := []rune(b)

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

// levenshteinSimilarity returns a normalized similarity in [0,1]:
// 1 - distance/maxLen. Identical strings score 1.0.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshteinDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

// subsequenceSimilarity scores pattern against candidate with the
// fuzzy subsequence matcher, normalized by the pattern's self-match
// score so the result lands in [0,1]. A candidate that does not
// contain the pattern as a subsequence scores 0.
func subsequenceSimilarity(pattern, candidate string) float64 {
	if pattern == candidate {
		return 1.0
	}

	self := fuzzy.Find(pattern, []string{pattern})
	if len(self) == 0 || self[0].Score <= 0 {
		return 0
	}

	matches := fuzzy.Find(pattern, []string{candidate})
	if len(matches) == 0 {
		return 0
	}

	score := float64(matches[0].Score) / float64(self[0].Score)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// normalizeFuzzy prepares a string for fuzzy comparison: trims
// surrounding whitespace, collapses runs of inner whitespace, and
// lower-cases unless the query is case-sensitive.
func normalizeFuzzy(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// fuzzySimilarity evaluates the query's configured metric against a
// candidate line. The pattern is compared to the whole normalized
// line and to every sliding window of as many tokens as the pattern
// has; the best similarity wins, so a short pattern can match a
// single token inside a long line.
func (q *Query) fuzzySimilarity(line string) float64 {
	pattern := normalizeFuzzy(q.spec.ContentPattern, q.spec.CaseSensitive)
	candidate := normalizeFuzzy(line, q.spec.CaseSensitive)

	metric := levenshteinSimilarity
	if q.spec.FuzzyMetric == MetricSubsequence {
		metric = subsequenceSimilarity
	}

	best := metric(pattern, candidate)
	if best == 1.0 {
		return best
	}

	tokens := strings.Fields(candidate)
	window := len(strings.Fields(pattern))
	if window == 0 || window > len(tokens) {
		return best
	}

	for i := 0; i+window <= len(tokens); i++ {
		sim := metric(pattern, strings.Join(tokens[i:i+window], " "))
		if sim > best {
			best = sim
			if best == 1.0 {
				break
			}
		}
	}
	return best
}
