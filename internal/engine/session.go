package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noamw/histscan-mcp/internal/gitio"
)

// Session owns one in-flight search: its query, state machine, result
// buffer, progress counters, and event broadcaster. The background
// walk goroutine is the sole writer; all other access is snapshot
// reads. Sessions are created and owned by a Registry.
type Session struct {
	id     string
	query  *Query
	reader gitio.RepositoryReader

	mu            sync.RWMutex
	state         SessionState
	results       []SearchResult // discovery order, append-only
	ranked        []SearchResult // total order, built at the terminal transition
	progress      float64
	commitsWalked int
	filesWalked   int
	skipped       int
	timedOut      bool
	errMsg        string
	createdAt     time.Time
	startedAt     time.Time
	finishedAt    time.Time

	bc        *broadcaster
	subBuffer int
	cancel    context.CancelFunc
	done      chan struct{}
}

func newSession(query *Query, reader gitio.RepositoryReader, subBuffer int) *Session {
	return &Session{
		id:        uuid.NewString(),
		query:     query,
		reader:    reader,
		state:     StatePending,
		createdAt: time.Now(),
		bc:        newBroadcaster(),
		subBuffer: subBuffer,
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Query returns the session's frozen query.
func (s *Session) Query() *Query {
	return s.query
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run executes the walk. It is invoked exactly once, on the session's
// own goroutine, by the owning registry.
func (s *Session) run(ctx context.Context) {
	s.mu.Lock()
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	w := &walker{
		reader: s.reader,
		query:  s.query,
		hooks: walkHooks{
			result:   s.appendResult,
			progress: s.noteProgress,
			skip:     s.noteSkip,
		},
	}

	s.finish(w.walk(ctx))
}

// appendResult appends one result and publishes the corresponding
// event atomically, so no subscriber ever learns of a result it
// cannot read back. Returns false once MaxResults is reached.
func (s *Session) appendResult(r SearchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxResults := s.query.Spec().MaxResults
	if maxResults > 0 && len(s.results) >= maxResults {
		return false
	}

	s.results = append(s.results, r)
	s.bc.publish(ProgressEvent{Type: EventResult, Result: &r})

	return maxResults == 0 || len(s.results) < maxResults
}

func (s *Session) noteProgress(commitsWalked, totalCommits, filesWalked int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitsWalked = commitsWalked
	s.filesWalked = filesWalked
	if totalCommits > 0 {
		s.progress = float64(commitsWalked) / float64(totalCommits)
	}

	s.bc.publish(ProgressEvent{
		Type:         EventProgress,
		Ratio:        s.progress,
		Message:      fmt.Sprintf("walked %d/%d commits", commitsWalked, totalCommits),
		ResultsSoFar: len(s.results),
	})
}

func (s *Session) noteSkip(_ error) {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// finish performs the terminal transition: ranks the buffer, records
// the final state, and publishes the terminal event, all atomically.
func (s *Session) finish(walkErr error) {
	s.mu.Lock()

	s.finishedAt = time.Now()
	s.ranked = append([]SearchResult(nil), s.results...)
	sort.SliceStable(s.ranked, func(i, j int) bool {
		return resultLess(s.ranked[i], s.ranked[j])
	})

	duration := s.finishedAt.Sub(s.startedAt).Milliseconds()

	switch {
	case walkErr == nil:
		s.state = StateCompleted
		s.bc.publish(ProgressEvent{Type: EventCompleted, TotalResults: len(s.results), DurationMs: duration})
	case errors.Is(walkErr, context.DeadlineExceeded):
		// Deadline reached: partial results remain valid, so this is
		// a graceful completion flagged as timed out.
		s.state = StateCompleted
		s.timedOut = true
		s.bc.publish(ProgressEvent{Type: EventCompleted, TotalResults: len(s.results), DurationMs: duration})
	case errors.Is(walkErr, context.Canceled):
		s.state = StateCancelled
		s.bc.publish(ProgressEvent{Type: EventCompleted, TotalResults: len(s.results), DurationMs: duration})
	default:
		s.state = StateFailed
		s.errMsg = walkErr.Error()
		s.bc.publish(ProgressEvent{Type: EventError, Error: walkErr.Error()})
	}

	s.mu.Unlock()
	close(s.done)
}

// Status returns a point-in-time snapshot.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStatus{
		ID:            s.id,
		State:         s.state,
		Progress:      s.progress,
		ResultsCount:  len(s.results),
		CommitsWalked: s.commitsWalked,
		FilesWalked:   s.filesWalked,
		SkippedItems:  s.skipped,
		TimedOut:      s.timedOut,
		Error:         s.errMsg,
		CreatedAt:     s.createdAt,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
	}
}

// CommitsWalked returns the current commit counter.
func (s *Session) CommitsWalked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitsWalked
}

// Results returns one page of results plus aggregate metadata. While
// the session is running, pages reflect the stable discovery order;
// once terminal they reflect the ranked total order. Pages are
// 1-based; pageSize 0 means everything.
func (s *Session) Results(page, pageSize int) ([]SearchResult, ResultsMetadata) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := s.results
	if s.state.Terminal() {
		view = s.ranked
	}

	meta := s.metadataLocked()

	if pageSize <= 0 {
		return append([]SearchResult(nil), view...), meta
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(view) {
		return nil, meta
	}
	end := start + pageSize
	if end > len(view) {
		end = len(view)
	}
	return append([]SearchResult(nil), view[start:end]...), meta
}

// snapshotResults returns a copy of the current result view for export.
func (s *Session) snapshotResults() ([]SearchResult, ResultsMetadata) {
	return s.Results(0, 0)
}

func (s *Session) metadataLocked() ResultsMetadata {
	var duration int64
	if !s.startedAt.IsZero() {
		endpoint := s.finishedAt
		if endpoint.IsZero() {
			endpoint = time.Now()
		}
		duration = endpoint.Sub(s.startedAt).Milliseconds()
	}

	return ResultsMetadata{
		TotalCount:    len(s.results),
		CommitsWalked: s.commitsWalked,
		FilesWalked:   s.filesWalked,
		SkippedItems:  s.skipped,
		DurationMs:    duration,
		State:         s.state,
		TimedOut:      s.timedOut,
		Error:         s.errMsg,
	}
}

// Subscribe attaches an observer to the session's event stream. The
// returned channel first replays every already-published result event
// in original order, then carries live events, and is closed after
// the terminal event. If the subscriber falls too far behind it is
// disconnected: the channel closes without a terminal event and the
// caller should fall back to polling Results. The returned cancel
// function detaches early.
func (s *Session) Subscribe() (<-chan ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay := make([]ProgressEvent, 0, len(s.results)+1)
	for i := range s.results {
		replay = append(replay, ProgressEvent{Type: EventResult, Result: &s.results[i]})
	}

	if s.state.Terminal() {
		duration := s.finishedAt.Sub(s.startedAt).Milliseconds()
		if s.state == StateFailed {
			replay = append(replay, ProgressEvent{Type: EventError, Error: s.errMsg})
		} else {
			replay = append(replay, ProgressEvent{Type: EventCompleted, TotalResults: len(s.results), DurationMs: duration})
		}
	}

	sub := s.bc.subscribe(replay, s.subBuffer)
	return sub.Events(), func() { s.bc.unsubscribe(sub) }
}
