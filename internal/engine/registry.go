package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/noamw/histscan-mcp/internal/gitio"
)

// ReaderFactory creates a RepositoryReader for a repository path.
// Injectable so tests can substitute in-memory readers.
type ReaderFactory func(repositoryPath string) gitio.RepositoryReader

// RegistryConfig holds the registry's tunables.
type RegistryConfig struct {
	// MaxSessions caps concurrently running sessions process-wide.
	MaxSessions int
	// Retention is how long terminal sessions remain readable before
	// the reaper purges them.
	Retention time.Duration
	// ReapInterval is the period of the background reap sweep.
	ReapInterval time.Duration
	// SubscriberBuffer bounds each subscriber's event queue.
	SubscriberBuffer int
	// DefaultTimeout applies to queries that set no timeout of their own.
	DefaultTimeout time.Duration
	// MaxFileSize applies to queries that set no file size cap of their own.
	MaxFileSize int64
	// NewReader creates repository readers; defaults to GitReader.
	NewReader ReaderFactory
}

func (c *RegistryConfig) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 4
	}
	if c.Retention <= 0 {
		c.Retention = 5 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.NewReader == nil {
		c.NewReader = func(path string) gitio.RepositoryReader {
			return gitio.NewGitReader(path)
		}
	}
}

// Registry is the process-wide table of search sessions. It owns
// every session's lifetime, enforces the concurrency cap, and reaps
// terminal sessions past their retention window.
type Registry struct {
	cfg RegistryConfig
	sem *semaphore.Weighted

	mu       sync.RWMutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	closed   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry creates a registry and starts its reap loop.
func NewRegistry(cfg RegistryConfig) *Registry {
	cfg.applyDefaults()

	r := &Registry{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxSessions)),
		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
		stop:     make(chan struct{}),
	}

	r.wg.Add(1)
	go r.reapLoop()

	return r
}

// Create validates the spec, admits the session under the concurrency
// cap, and starts its background walk. Over-cap submissions fail
// immediately with ErrCapacity rather than queueing.
func (r *Registry) Create(spec QuerySpec) (*Session, error) {
	if spec.TimeoutSeconds == 0 && r.cfg.DefaultTimeout > 0 {
		spec.TimeoutSeconds = int(r.cfg.DefaultTimeout.Seconds())
	}
	if spec.MaxFileSizeBytes == 0 && r.cfg.MaxFileSize > 0 {
		spec.MaxFileSizeBytes = r.cfg.MaxFileSize
	}

	query, err := NewQuery(spec)
	if err != nil {
		return nil, err
	}

	if !r.sem.TryAcquire(1) {
		return nil, ErrCapacity
	}

	session := newSession(query, r.cfg.NewReader(query.Spec().RepositoryPath), r.cfg.SubscriberBuffer)

	ctx, cancel := context.WithTimeout(context.Background(), query.Timeout())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		r.sem.Release(1)
		return nil, ErrNotFound
	}
	r.sessions[session.ID()] = session
	r.cancels[session.ID()] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer cancel()

		session.run(ctx)

		status := session.Status()
		slog.Info("Search session finished",
			"session_id", session.ID(),
			"state", status.State,
			"results", status.ResultsCount,
			"commits_walked", status.CommitsWalked,
			"skipped", status.SkippedItems,
		)
	}()

	slog.Info("Search session created", "session_id", session.ID(), "repository", spec.RepositoryPath)
	return session, nil
}

// Get returns the session for the given ID, or ErrNotFound if it is
// unknown or already reaped.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// Cancel requests cooperative cancellation of a running session. The
// walk observes it at its next poll point.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	session, ok := r.sessions[id]
	cancel := r.cancels[id]
	r.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if session.Status().State.Terminal() {
		return ErrAlreadyTerminal
	}

	cancel()
	slog.Info("Search session cancellation requested", "session_id", id)
	return nil
}

// ListActive returns status snapshots of all non-terminal sessions.
func (r *Registry) ListActive() []SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []SessionStatus
	for _, session := range r.sessions {
		status := session.Status()
		if !status.State.Terminal() {
			active = append(active, status)
		}
	}
	return active
}

// Reap purges terminal sessions whose retention window has elapsed.
// It runs periodically in the background and is exported for tests.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for id, session := range r.sessions {
		status := session.Status()
		if status.State.Terminal() && now.Sub(status.FinishedAt) > r.cfg.Retention {
			delete(r.sessions, id)
			delete(r.cancels, id)
			reaped++
		}
	}

	if reaped > 0 {
		slog.Info("Reaped terminal sessions", "count", reaped)
	}
	return reaped
}

func (r *Registry) reapLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Reap(time.Now())
		case <-r.stop:
			return
		}
	}
}

// Close stops the reaper, cancels every running session, and waits
// for their goroutines to finish.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	close(r.stop)
	for _, cancel := range cancels {
		cancel()
	}
	r.wg.Wait()
	return nil
}
