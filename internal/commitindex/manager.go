package commitindex

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/noamw/histscan-mcp/internal/gitio"
)

// DefaultTTL is how long a built index serves lookups before it is
// rebuilt. Commit history only grows, so staleness just means missing
// the newest commits.
const DefaultTTL = 5 * time.Minute

// ReaderFactory creates a RepositoryReader for a repository path.
type ReaderFactory func(repositoryPath string) gitio.RepositoryReader

// Manager caches one Index per repository path and rebuilds expired
// entries on demand.
type Manager struct {
	newReader ReaderFactory
	ttl       time.Duration

	mu      sync.Mutex
	indexes map[string]*Index
	closed  bool
}

// NewManager creates an index manager. A zero ttl means DefaultTTL.
func NewManager(newReader ReaderFactory, ttl time.Duration) *Manager {
	if newReader == nil {
		newReader = func(path string) gitio.RepositoryReader {
			return gitio.NewGitReader(path)
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		newReader: newReader,
		ttl:       ttl,
		indexes:   make(map[string]*Index),
	}
}

// ForRepository returns a current index for the repository, building
// one if none exists or the cached one expired. The returned index
// carries its own reference: the caller must Close it when done.
// Handles handed out before an expiry rebuild stay queryable; the
// underlying index is released once the cache has evicted it and
// every holder has closed.
func (m *Manager) ForRepository(ctx context.Context, repoPath string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, context.Canceled
	}

	if cached, ok := m.indexes[repoPath]; ok {
		if time.Since(cached.BuiltAt()) < m.ttl {
			cached.acquire()
			return cached, nil
		}
		// Drops only the cache's reference; live holders keep the
		// expired index open until they Close it.
		_ = cached.Close()
		delete(m.indexes, repoPath)
	}

	start := time.Now()
	index, err := Build(ctx, m.newReader(repoPath), repoPath, "")
	if err != nil {
		return nil, err
	}

	slog.Info("Built commit lookup index",
		"repository", repoPath,
		"commits", index.CommitCount(),
		"duration", time.Since(start),
	)

	m.indexes[repoPath] = index
	index.acquire()
	return index, nil
}

// Close releases the cache's reference on every index. Indexes still
// held by callers close when those callers do.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for path, index := range m.indexes {
		_ = index.Close()
		delete(m.indexes, path)
	}
	return nil
}
