package gitio

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// fieldSep separates fields within one commit record in git log output.
	fieldSep = "\x1f"
	// recordSep separates commit records in git log output.
	recordSep = "\x1e"
)

// CommitMeta holds the metadata of a single commit.
type CommitMeta struct {
	Hash        string
	Author      string
	AuthorEmail string
	Date        time.Time
	Message     string
}

// RepositoryReader enumerates commits, changed files, and file contents
// of a version-controlled repository. Implementations must be safe for
// concurrent use by independent search sessions.
type RepositoryReader interface {
	// ListCommits returns commit metadata for the given branch,
	// newest first. An empty branch means the repository HEAD.
	ListCommits(ctx context.Context, branch string) ([]CommitMeta, error)

	// ChangedFiles returns the paths changed by the given commit,
	// relative to the repository root.
	ChangedFiles(ctx context.Context, hash string) ([]string, error)

	// FileContent returns the content of a file as of the given commit.
	FileContent(ctx context.Context, hash, path string) ([]byte, error)
}

// GitReader reads a local repository by shelling out to git.
type GitReader struct {
	dir      string
	executor CommandExecutor
}

// NewGitReader creates a GitReader for the repository at dir.
func NewGitReader(dir string) *GitReader {
	return &GitReader{
		dir:      dir,
		executor: &DefaultExecutor{},
	}
}

// NewGitReaderWithExecutor creates a GitReader with a custom executor (for testing).
func NewGitReaderWithExecutor(dir string, executor CommandExecutor) *GitReader {
	return &GitReader{
		dir:      dir,
		executor: executor,
	}
}

// IsRepository checks whether the reader's directory is a git repository.
func (r *GitReader) IsRepository(ctx context.Context) bool {
	_, err := r.executor.Run(ctx, r.dir, "git", "rev-parse", "--git-dir")
	return err == nil
}

// ListCommits returns commit metadata for the given branch, newest first.
func (r *GitReader) ListCommits(ctx context.Context, branch string) ([]CommitMeta, error) {
	ref := branch
	if ref == "" {
		ref = "HEAD"
	}

	// %x1f/%x1e keep multi-line commit messages parseable.
	format := strings.Join([]string{"%H", "%an", "%ae", "%aI", "%B"}, fieldSep) + recordSep
	output, err := r.executor.Run(ctx, r.dir, "git", "log", "--format="+format, ref)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseCommitRecords(string(output))
}

// ChangedFiles returns the paths changed by the given commit.
func (r *GitReader) ChangedFiles(ctx context.Context, hash string) ([]string, error) {
	output, err := r.executor.Run(ctx, r.dir, "git", "diff-tree",
		"--no-commit-id",
		"--name-only",
		"--root",
		"-r",
		hash,
	)
	if err != nil {
		return nil, fmt.Errorf("git diff-tree failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")

	var files []string
	for _, line := range lines {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// FileContent returns the content of a file as of the given commit.
func (r *GitReader) FileContent(ctx context.Context, hash, path string) ([]byte, error) {
	output, err := r.executor.Run(ctx, r.dir, "git", "show", hash+":"+path)
	if err != nil {
		return nil, fmt.Errorf("git show failed: %w", err)
	}
	return output, nil
}

// parseCommitRecords parses git log output produced with the reader's format.
func parseCommitRecords(output string) ([]CommitMeta, error) {
	var commits []CommitMeta

	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed commit record: %q", abbreviate(record, 80))
		}

		date, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, fmt.Errorf("malformed commit date %q: %w", fields[3], err)
		}

		commits = append(commits, CommitMeta{
			Hash:        fields[0],
			Author:      fields[1],
			AuthorEmail: fields[2],
			Date:        date,
			Message:     strings.TrimRight(fields[4], "\n"),
		})
	}

	return commits, nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
