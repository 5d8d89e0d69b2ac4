package engine

// typeWeights are the static per-criterion weights applied to raw
// match scores. Graded and identifier criteria keep their raw score;
// broader metadata criteria rank below them on equal raw scores.
var typeWeights = map[SearchType]float64{
	SearchTypeContent: 1.0,
	SearchTypeFuzzy:   1.0,
	SearchTypeCommit:  1.0,
	SearchTypeAuthor:  0.9,
	SearchTypeMessage: 0.85,
	SearchTypePath:    0.8,
	SearchTypeDate:    0.7,
}

// relevance combines a raw match score with the static weight for its
// type, clamped to [0,1].
func relevance(m Match) float64 {
	w, ok := typeWeights[m.Type]
	if !ok {
		w = 1.0
	}
	score := m.Score * w
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// resultLess defines the session-wide total order: descending
// relevance, then commit recency (newer first), then file path, then
// line number, with the commit hash as the final disambiguator so no
// two distinct results compare equal.
func resultLess(a, b SearchResult) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if !a.CommitDate.Equal(b.CommitDate) {
		return a.CommitDate.After(b.CommitDate)
	}
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.LineNumber != b.LineNumber {
		return a.LineNumber < b.LineNumber
	}
	if a.CommitHash != b.CommitHash {
		return a.CommitHash < b.CommitHash
	}
	return a.SearchType < b.SearchType
}
