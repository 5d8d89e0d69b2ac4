package gitio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockExecutor records commands and returns configured responses.
// This is exported for use in integration tests.
type MockExecutor struct {
	commands []MockCommand
	calls    []ExecutorCall
}

// MockCommand defines a mock response for a command prefix.
type MockCommand struct {
	NamePrefix string
	Output     []byte
	Err        error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		commands: make([]MockCommand, 0),
		calls:    make([]ExecutorCall, 0),
	}
}

// AddResponse adds a mock response for commands matching the given prefix.
func (m *MockExecutor) AddResponse(namePrefix string, output []byte, err error) {
	m.commands = append(m.commands, MockCommand{
		NamePrefix: namePrefix,
		Output:     output,
		Err:        err,
	})
}

// Run executes a command and returns the configured mock response.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	call := ExecutorCall{Dir: dir, Name: name, Args: args}
	m.calls = append(m.calls, call)

	// Build full command string for matching
	fullCmd := name + " " + strings.Join(args, " ")

	// Find matching response
	for i, cmd := range m.commands {
		if strings.HasPrefix(fullCmd, cmd.NamePrefix) {
			// Remove used response
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return cmd.Output, cmd.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

// GetCalls returns all recorded command calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	return m.calls
}

// FakeCommit describes one commit held by a FakeReader.
type FakeCommit struct {
	Meta  CommitMeta
	Files map[string]string // path -> content at this commit
}

// FakeReader is an in-memory RepositoryReader for tests. Commits are
// returned in the order given (callers list newest first, matching the
// GitReader contract).
type FakeReader struct {
	mu sync.Mutex

	Commits []FakeCommit

	// ListErr, when set, fails ListCommits entirely.
	ListErr error
	// FileErrs maps "hash:path" to an error returned by FileContent.
	FileErrs map[string]error
	// ChangedFilesErrs maps a commit hash to an error returned by ChangedFiles.
	ChangedFilesErrs map[string]error
	// CommitDelay is slept before each ChangedFiles call, to keep a
	// walk in flight long enough for cancellation tests.
	CommitDelay time.Duration

	changedFilesCalls int
}

// ListCommits returns the configured commit metadata.
func (f *FakeReader) ListCommits(_ context.Context, _ string) ([]CommitMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	metas := make([]CommitMeta, len(f.Commits))
	for i, c := range f.Commits {
		metas[i] = c.Meta
	}
	return metas, nil
}

// ChangedFiles returns the file paths of the given commit.
func (f *FakeReader) ChangedFiles(ctx context.Context, hash string) ([]string, error) {
	f.mu.Lock()
	delay := f.CommitDelay
	f.changedFilesCalls++
	var files []string
	var err error
	found := false
	for _, c := range f.Commits {
		if c.Meta.Hash == hash {
			found = true
			for path := range c.Files {
				files = append(files, path)
			}
			sort.Strings(files)
			break
		}
	}
	if e, ok := f.ChangedFilesErrs[hash]; ok {
		err = e
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("unknown commit %s", hash)
	}
	return files, nil
}

// FileContent returns the configured content for hash:path.
func (f *FakeReader) FileContent(_ context.Context, hash, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FileErrs[hash+":"+path]; ok {
		return nil, err
	}
	for _, c := range f.Commits {
		if c.Meta.Hash == hash {
			if content, ok := c.Files[path]; ok {
				return []byte(content), nil
			}
			return nil, fmt.Errorf("unknown file %s at %s", path, hash)
		}
	}
	return nil, fmt.Errorf("unknown commit %s", hash)
}

// ChangedFilesCalls reports how many commits have been visited so far.
func (f *FakeReader) ChangedFilesCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changedFilesCalls
}
