package engine

import (
	"regexp"
	"strings"
	"time"
)

// Fuzzy metric names accepted by QuerySpec.FuzzyMetric.
const (
	MetricLevenshtein = "levenshtein"
	MetricSubsequence = "subsequence"
)

// DefaultTimeoutSeconds is applied when a QuerySpec leaves TimeoutSeconds unset.
const DefaultTimeoutSeconds = 300

// QuerySpec describes one search request. It is plain data as
// submitted by a caller; NewQuery validates it and freezes it into an
// immutable Query.
type QuerySpec struct {
	RepositoryPath string `json:"repository_path"`
	Branch         string `json:"branch,omitempty"`

	ContentPattern string `json:"content_pattern,omitempty"`
	CaseSensitive  bool   `json:"case_sensitive,omitempty"`

	FuzzySearch    bool    `json:"fuzzy_search,omitempty"`
	FuzzyThreshold float64 `json:"fuzzy_threshold,omitempty"`
	FuzzyMetric    string  `json:"fuzzy_metric,omitempty"` // levenshtein (default) or subsequence

	CommitHash      string `json:"commit_hash,omitempty"`
	AuthorPattern   string `json:"author_pattern,omitempty"`
	MessagePattern  string `json:"message_pattern,omitempty"`
	FilePathPattern string `json:"file_path_pattern,omitempty"`

	FileExtensions []string `json:"file_extensions,omitempty"`
	IncludeGlobs   []string `json:"include_globs,omitempty"`
	ExcludeGlobs   []string `json:"exclude_globs,omitempty"`

	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	MaxResults       int   `json:"max_results,omitempty"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty"`
	TimeoutSeconds   int   `json:"timeout_seconds,omitempty"`
}

// hasCriterion reports whether at least one search criterion is set.
// RepositoryPath, branch, globs, and limits alone do not qualify.
func (s QuerySpec) hasCriterion() bool {
	return s.ContentPattern != "" ||
		s.CommitHash != "" ||
		s.AuthorPattern != "" ||
		s.MessagePattern != "" ||
		s.FilePathPattern != "" ||
		len(s.FileExtensions) > 0 ||
		s.DateFrom != nil ||
		s.DateTo != nil
}

// Query is a validated, frozen QuerySpec with compiled patterns.
type Query struct {
	spec QuerySpec

	contentRe      *regexp.Regexp // nil when the pattern is a literal or fuzzy
	contentLiteral string         // lower-cased when case-insensitive
	authorRe       *regexp.Regexp
	messageRe      *regexp.Regexp
	pathRe         *regexp.Regexp
	extensions     map[string]struct{} // normalized, without leading dot
}

// NewQuery validates a QuerySpec and freezes it. All validation
// failures are *ValidationError.
func NewQuery(spec QuerySpec) (*Query, error) {
	if strings.TrimSpace(spec.RepositoryPath) == "" {
		return nil, validationErr("repository_path", "must not be empty")
	}
	if !spec.hasCriterion() {
		return nil, validationErr("", "at least one search criterion must be set")
	}
	if spec.FuzzyThreshold < 0 || spec.FuzzyThreshold > 1 {
		return nil, validationErr("fuzzy_threshold", "must be within [0,1]")
	}
	if spec.FuzzySearch && strings.TrimSpace(spec.ContentPattern) == "" {
		return nil, validationErr("content_pattern", "fuzzy search requires a content pattern")
	}
	switch spec.FuzzyMetric {
	case "", MetricLevenshtein, MetricSubsequence:
	default:
		return nil, validationErr("fuzzy_metric", "must be levenshtein or subsequence")
	}
	if spec.FuzzyMetric == "" {
		spec.FuzzyMetric = MetricLevenshtein
	}
	if spec.MaxResults < 0 {
		return nil, validationErr("max_results", "must not be negative")
	}
	if spec.MaxFileSizeBytes < 0 {
		return nil, validationErr("max_file_size_bytes", "must not be negative")
	}
	if spec.TimeoutSeconds < 0 {
		return nil, validationErr("timeout_seconds", "must not be negative")
	}
	if spec.TimeoutSeconds == 0 {
		spec.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if spec.DateFrom != nil && spec.DateTo != nil && spec.DateTo.Before(*spec.DateFrom) {
		return nil, validationErr("date_to", "must not be before date_from")
	}

	q := &Query{spec: spec}

	if spec.ContentPattern != "" && !spec.FuzzySearch {
		// The content pattern doubles as literal and regex: if it
		// compiles it is used as a regex, otherwise it falls back to
		// substring matching.
		pattern := spec.ContentPattern
		if !spec.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil {
			q.contentRe = re
		} else {
			q.contentLiteral = spec.ContentPattern
			if !spec.CaseSensitive {
				q.contentLiteral = strings.ToLower(q.contentLiteral)
			}
		}
	}

	var err error
	if q.authorRe, err = compilePattern(spec.AuthorPattern, "author_pattern"); err != nil {
		return nil, err
	}
	if q.messageRe, err = compilePattern(spec.MessagePattern, "message_pattern"); err != nil {
		return nil, err
	}
	if q.pathRe, err = compilePattern(spec.FilePathPattern, "file_path_pattern"); err != nil {
		return nil, err
	}

	if len(spec.FileExtensions) > 0 {
		q.extensions = make(map[string]struct{}, len(spec.FileExtensions))
		for _, ext := range spec.FileExtensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				q.extensions[ext] = struct{}{}
			}
		}
	}

	return q, nil
}

func compilePattern(pattern, field string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, validationErr(field, "malformed regex: "+err.Error())
	}
	return re, nil
}

// Spec returns a copy of the validated spec.
func (q *Query) Spec() QuerySpec {
	return q.spec
}

// Timeout returns the session deadline duration.
func (q *Query) Timeout() time.Duration {
	return time.Duration(q.spec.TimeoutSeconds) * time.Second
}

// hasContentCriteria reports whether line-level matching is required.
func (q *Query) hasContentCriteria() bool {
	return q.spec.ContentPattern != ""
}

// hasFileCriteria reports whether the walk must enumerate changed files.
func (q *Query) hasFileCriteria() bool {
	return q.hasContentCriteria() || q.spec.FilePathPattern != "" || len(q.extensions) > 0
}

// dateOnly reports whether the date range is the sole criterion, in
// which case every in-range commit yields a date result.
func (q *Query) dateOnly() bool {
	s := q.spec
	return (s.DateFrom != nil || s.DateTo != nil) &&
		s.ContentPattern == "" && s.CommitHash == "" &&
		s.AuthorPattern == "" && s.MessagePattern == "" &&
		s.FilePathPattern == "" && len(s.FileExtensions) == 0
}

// inDateRange applies the date-range pre-filter.
func (q *Query) inDateRange(t time.Time) bool {
	if q.spec.DateFrom != nil && t.Before(*q.spec.DateFrom) {
		return false
	}
	if q.spec.DateTo != nil && t.After(*q.spec.DateTo) {
		return false
	}
	return true
}
