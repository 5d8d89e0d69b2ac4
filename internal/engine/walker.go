package engine

import (
	"bytes"
	"context"
	"strings"

	"github.com/noamw/histscan-mcp/internal/gitio"
)

// cancelPollLines bounds how many lines are scanned between
// cancellation checks inside a single file.
const cancelPollLines = 256

// walkHooks receives walk output. The result hook returns false to
// stop the walk (max results reached); the other hooks are
// notifications only.
type walkHooks struct {
	result   func(SearchResult) bool
	progress func(commitsWalked, totalCommits, filesWalked int)
	skip     func(err error)
}

// walker drives one session's traversal of the commit graph. It holds
// no shared state; every session constructs its own.
type walker struct {
	reader gitio.RepositoryReader
	query  *Query
	hooks  walkHooks
}

// walk enumerates candidate units and feeds matches through the
// hooks. A nil return means the walk ran to completion (or was
// stopped by the result hook); a context error means cancellation or
// timeout; any other error is fatal for the session. Per-commit and
// per-file read failures are skipped and counted, never fatal.
func (w *walker) walk(ctx context.Context) error {
	spec := w.query.Spec()

	commits, err := w.reader.ListCommits(ctx, spec.Branch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	total := len(commits)
	filesWalked := 0
	stopped := false

	for i, commit := range commits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stopped {
			break
		}

		if !w.query.inDateRange(commit.Date) {
			w.hooks.progress(i+1, total, filesWalked)
			continue
		}

		// The commit-hash criterion restricts the walk as well as
		// emitting a match.
		hashMatch, hashOK := w.query.matchCommitHash(commit.Hash)
		if spec.CommitHash != "" && !hashOK {
			w.hooks.progress(i+1, total, filesWalked)
			continue
		}

		if hashOK {
			stopped = !w.emitCommitResult(commit, hashMatch)
		}
		if m, ok := w.query.matchAuthor(commit); ok && !stopped {
			stopped = !w.emitCommitResult(commit, m)
		}
		if m, ok := w.query.matchMessage(commit); ok && !stopped {
			stopped = !w.emitCommitResult(commit, m)
		}
		if w.query.dateOnly() && !stopped {
			stopped = !w.emitCommitResult(commit, Match{Type: SearchTypeDate, Score: 1.0})
		}

		if !stopped && w.query.hasFileCriteria() {
			walked, err := w.walkFiles(ctx, commit, &stopped)
			filesWalked += walked
			if err != nil {
				return err
			}
		}

		w.hooks.progress(i+1, total, filesWalked)
	}

	return nil
}

// walkFiles enumerates the files changed by one commit, applying the
// path criterion and, when content matching is requested, scanning
// file contents line by line. Returns the number of files walked.
func (w *walker) walkFiles(ctx context.Context, commit gitio.CommitMeta, stopped *bool) (int, error) {
	files, err := w.reader.ChangedFiles(ctx, commit.Hash)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.hooks.skip(err)
		return 0, nil
	}

	walked := 0
	for _, path := range files {
		if *stopped {
			break
		}
		if err := ctx.Err(); err != nil {
			return walked, err
		}

		if !w.query.allowsFile(path) {
			continue
		}
		walked++

		if m, ok := w.query.matchPath(path); ok {
			*stopped = !w.emitFileResult(commit, path, m)
			if *stopped {
				break
			}
		} else if !w.query.hasContentCriteria() && w.query.pathRe == nil {
			// Extension/glob-only queries surface the matching files
			// themselves as path results.
			*stopped = !w.emitFileResult(commit, path, Match{Type: SearchTypePath, Score: 1.0})
			if *stopped {
				break
			}
		}

		if !w.query.hasContentCriteria() {
			continue
		}

		if err := w.scanFile(ctx, commit, path, stopped); err != nil {
			return walked, err
		}
	}

	return walked, nil
}

// scanFile reads one file at one commit and evaluates the content
// criterion against each line. Oversized and binary files are skipped
// silently; read failures are skipped and counted.
func (w *walker) scanFile(ctx context.Context, commit gitio.CommitMeta, path string, stopped *bool) error {
	content, err := w.reader.FileContent(ctx, commit.Hash, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.hooks.skip(err)
		return nil
	}

	if maxSize := w.query.Spec().MaxFileSizeBytes; maxSize > 0 && int64(len(content)) > maxSize {
		return nil
	}
	if isBinary(content) {
		return nil
	}

	for i, line := range strings.Split(string(content), "\n") {
		if *stopped {
			return nil
		}
		if i%cancelPollLines == cancelPollLines-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		m, ok := w.query.matchLine(line)
		if !ok {
			continue
		}

		result := newResult(commit, m)
		result.FilePath = path
		result.MatchingLine = strings.TrimRight(line, "\r")
		result.LineNumber = i + 1
		if !w.hooks.result(result) {
			*stopped = true
			return nil
		}
	}

	return nil
}

func (w *walker) emitCommitResult(commit gitio.CommitMeta, m Match) bool {
	return w.hooks.result(newResult(commit, m))
}

func (w *walker) emitFileResult(commit gitio.CommitMeta, path string, m Match) bool {
	result := newResult(commit, m)
	result.FilePath = path
	return w.hooks.result(result)
}

func newResult(commit gitio.CommitMeta, m Match) SearchResult {
	return SearchResult{
		CommitHash:     commit.Hash,
		SearchType:     m.Type,
		RelevanceScore: relevance(m),
		AuthorName:     commit.Author,
		CommitDate:     commit.Date,
		CommitMessage:  commit.Message,
	}
}

// isBinary reports whether content looks like a binary blob. A NUL
// byte in the first 8000 bytes is the same heuristic git itself uses.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) != -1
}
