package engine

import (
	"path/filepath"
	"strings"

	"github.com/noamw/histscan-mcp/internal/gitio"
)

// Match is the outcome of evaluating one criterion against one
// candidate unit.
type Match struct {
	Type  SearchType
	Score float64
}

// matchCommitHash evaluates the commit-hash criterion: exact or
// prefix match, score 1.0.
func (q *Query) matchCommitHash(hash string) (Match, bool) {
	want := q.spec.CommitHash
	if want == "" {
		return Match{}, false
	}
	if hash == want || strings.HasPrefix(hash, want) {
		return Match{Type: SearchTypeCommit, Score: 1.0}, true
	}
	return Match{}, false
}

// matchAuthor evaluates the author regex against name and email.
func (q *Query) matchAuthor(meta gitio.CommitMeta) (Match, bool) {
	if q.authorRe == nil {
		return Match{}, false
	}
	if q.authorRe.MatchString(meta.Author) || q.authorRe.MatchString(meta.AuthorEmail) {
		return Match{Type: SearchTypeAuthor, Score: 1.0}, true
	}
	return Match{}, false
}

// matchMessage evaluates the message regex against the commit message.
func (q *Query) matchMessage(meta gitio.CommitMeta) (Match, bool) {
	if q.messageRe == nil {
		return Match{}, false
	}
	if q.messageRe.MatchString(meta.Message) {
		return Match{Type: SearchTypeMessage, Score: 1.0}, true
	}
	return Match{}, false
}

// matchPath evaluates the file-path regex against a changed file path.
func (q *Query) matchPath(path string) (Match, bool) {
	if q.pathRe == nil {
		return Match{}, false
	}
	if q.pathRe.MatchString(path) {
		return Match{Type: SearchTypePath, Score: 1.0}, true
	}
	return Match{}, false
}

// matchLine evaluates the content criterion against one line of text.
// Exact/regex hits score 1.0; fuzzy hits score their similarity and
// are accepted only at or above the threshold.
func (q *Query) matchLine(line string) (Match, bool) {
	if !q.hasContentCriteria() {
		return Match{}, false
	}

	if q.spec.FuzzySearch {
		sim := q.fuzzySimilarity(line)
		if sim < q.spec.FuzzyThreshold {
			return Match{}, false
		}
		return Match{Type: SearchTypeFuzzy, Score: sim}, true
	}

	if q.contentRe != nil {
		if q.contentRe.MatchString(line) {
			return Match{Type: SearchTypeContent, Score: 1.0}, true
		}
		return Match{}, false
	}

	candidate := line
	if !q.spec.CaseSensitive {
		candidate = strings.ToLower(line)
	}
	if strings.Contains(candidate, q.contentLiteral) {
		return Match{Type: SearchTypeContent, Score: 1.0}, true
	}
	return Match{}, false
}

// allowsFile applies the extension and glob pre-filters. No result is
// emitted for these; they only gate what reaches content matching.
func (q *Query) allowsFile(path string) bool {
	path = filepath.ToSlash(path)

	if len(q.extensions) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if _, ok := q.extensions[ext]; !ok {
			return false
		}
	}

	if len(q.spec.IncludeGlobs) > 0 {
		included := false
		for _, glob := range q.spec.IncludeGlobs {
			if matchGlob(glob, path) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, glob := range q.spec.ExcludeGlobs {
		if matchGlob(glob, path) {
			return false
		}
	}

	return true
}

// matchGlob matches a file path against a glob pattern. Supports **
// for directory matching and * for filename matching.
func matchGlob(pattern, path string) bool {
	// Handle **/ prefix (match any directory depth)
	if strings.HasPrefix(pattern, "**/") {
		rest := pattern[3:]
		if matchSimpleGlob(rest, path) {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchSimpleGlob(rest, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}

	// Handle /** suffix (match directory and all contents)
	if strings.HasSuffix(pattern, "/**") {
		dir := pattern[:len(pattern)-3]
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
		if strings.Contains(path, "/"+dir+"/") {
			return true
		}
		return false
	}

	return matchSimpleGlob(pattern, path)
}

// matchSimpleGlob matches without ** semantics. A pattern containing
// no slash matches against the base name at any depth.
func matchSimpleGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "/") {
		if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
			return true
		}
		return false
	}
	ok, err := filepath.Match(pattern, path)
	return err == nil && ok
}
