package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func newTestSession(t *testing.T, spec QuerySpec) *Session {
	t.Helper()
	spec.RepositoryPath = "r"
	q, err := NewQuery(spec)
	if err != nil {
		t.Fatalf("NewQuery failed: %v", err)
	}
	return newSession(q, testRepo(), 64)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Session did not finish in time")
	}
}

func TestSession_LifecycleCompleted(t *testing.T) {
	s := newTestSession(t, QuerySpec{ContentPattern: "package"})

	if s.Status().State != StatePending {
		t.Errorf("Expected pending before run, got %s", s.Status().State)
	}

	go s.run(context.Background())
	waitDone(t, s)

	status := s.Status()
	if status.State != StateCompleted {
		t.Errorf("Expected completed, got %s", status.State)
	}
	if status.ResultsCount == 0 {
		t.Error("Expected results")
	}
	if status.Progress != 1.0 {
		t.Errorf("Expected progress 1.0, got %f", status.Progress)
	}
	if status.StartedAt.IsZero() || status.FinishedAt.IsZero() {
		t.Error("Expected start and finish timestamps")
	}
}

func TestSession_FailedOnUnreadableRepository(t *testing.T) {
	q, err := NewQuery(QuerySpec{RepositoryPath: "r", ContentPattern: "x"})
	if err != nil {
		t.Fatalf("NewQuery failed: %v", err)
	}
	reader := testRepo()
	reader.ListErr = errors.New("not a git repository")
	s := newSession(q, reader, 64)

	go s.run(context.Background())
	waitDone(t, s)

	status := s.Status()
	if status.State != StateFailed {
		t.Errorf("Expected failed, got %s", status.State)
	}
	if status.Error == "" {
		t.Error("Expected recorded error message")
	}
}

func TestSession_CancelledKeepsPartialResults(t *testing.T) {
	q, err := NewQuery(QuerySpec{RepositoryPath: "r", ContentPattern: "package"})
	if err != nil {
		t.Fatalf("NewQuery failed: %v", err)
	}
	reader := testRepo()
	reader.CommitDelay = 20 * time.Millisecond
	s := newSession(q, reader, 64)

	ctx, cancel := context.WithCancel(context.Background())
	go s.run(ctx)

	// Let at least the first commit land, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for s.Status().ResultsCount == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	waitDone(t, s)

	status := s.Status()
	if status.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", status.State)
	}
	if status.ResultsCount == 0 {
		t.Error("Partial results must survive cancellation")
	}

	results, meta := s.Results(0, 0)
	if len(results) != status.ResultsCount {
		t.Errorf("Results(%d) disagrees with status (%d)", len(results), status.ResultsCount)
	}
	if meta.State != StateCancelled {
		t.Errorf("Expected cancelled metadata, got %s", meta.State)
	}
}

func TestSession_TimeoutIsGracefulCompletion(t *testing.T) {
	q, err := NewQuery(QuerySpec{RepositoryPath: "r", ContentPattern: "package", TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("NewQuery failed: %v", err)
	}
	reader := testRepo()
	reader.CommitDelay = 600 * time.Millisecond
	s := newSession(q, reader, 64)

	ctx, cancel := context.WithTimeout(context.Background(), q.Timeout())
	defer cancel()
	go s.run(ctx)
	waitDone(t, s)

	status := s.Status()
	if status.State != StateCompleted {
		t.Errorf("Timeout must complete gracefully, got %s", status.State)
	}
	if !status.TimedOut {
		t.Error("Expected timed_out flag")
	}
}

func TestSession_TerminalOrderingInvariant(t *testing.T) {
	s := newTestSession(t, QuerySpec{ContentPattern: "e", FuzzySearch: true, FuzzyThreshold: 0.1})

	go s.run(context.Background())
	waitDone(t, s)

	results, _ := s.Results(0, 0)
	if len(results) < 2 {
		t.Fatalf("Need multiple results to check ordering, got %d", len(results))
	}

	if !sort.SliceIsSorted(results, func(i, j int) bool {
		return resultLess(results[i], results[j])
	}) {
		t.Error("Terminal results must follow the total order")
	}
	for i := 1; i < len(results); i++ {
		if results[i].RelevanceScore > results[i-1].RelevanceScore {
			t.Fatalf("Score order violated at %d: %f > %f", i, results[i].RelevanceScore, results[i-1].RelevanceScore)
		}
	}
}

func TestSession_Pagination(t *testing.T) {
	s := newTestSession(t, QuerySpec{ContentPattern: "a", FuzzySearch: true, FuzzyThreshold: 0})

	go s.run(context.Background())
	waitDone(t, s)

	all, meta := s.Results(0, 0)
	if meta.TotalCount != len(all) {
		t.Errorf("Metadata total %d != %d", meta.TotalCount, len(all))
	}

	// Reassemble from pages of 3 and compare.
	var paged []SearchResult
	for page := 1; ; page++ {
		results, _ := s.Results(page, 3)
		if len(results) == 0 {
			break
		}
		paged = append(paged, results...)
	}

	if len(paged) != len(all) {
		t.Fatalf("Paged %d != full read %d", len(paged), len(all))
	}
	for i := range all {
		if paged[i] != all[i] {
			t.Errorf("Page read diverges at %d", i)
		}
	}
}

func TestSession_SubscribeLiveEvents(t *testing.T) {
	s := newTestSession(t, QuerySpec{CommitHash: "ccc333"})

	events, cancelSub := s.Subscribe()
	defer cancelSub()

	go s.run(context.Background())

	var resultEvents, terminalEvents int
	for ev := range events {
		switch ev.Type {
		case EventResult:
			resultEvents++
			if ev.Result.SearchType != SearchTypeCommit || ev.Result.RelevanceScore != 1.0 {
				t.Errorf("Unexpected result event: %+v", ev.Result)
			}
		case EventCompleted:
			terminalEvents++
			if ev.TotalResults != 1 {
				t.Errorf("Expected 1 total result, got %d", ev.TotalResults)
			}
		}
	}

	if resultEvents != 1 {
		t.Errorf("Expected exactly 1 result event, got %d", resultEvents)
	}
	if terminalEvents != 1 {
		t.Errorf("Expected exactly 1 terminal event, got %d", terminalEvents)
	}
}

func TestSession_LateSubscriberReplay(t *testing.T) {
	s := newTestSession(t, QuerySpec{ContentPattern: "package"})

	go s.run(context.Background())
	waitDone(t, s)

	resultsBefore, _ := s.Results(0, 0)
	if len(resultsBefore) == 0 {
		t.Fatal("Need results for replay test")
	}

	events, cancelSub := s.Subscribe()
	defer cancelSub()

	var replayed []SearchResult
	sawTerminal := false
	for ev := range events {
		switch ev.Type {
		case EventResult:
			if sawTerminal {
				t.Error("Result event after terminal event")
			}
			replayed = append(replayed, *ev.Result)
		case EventCompleted, EventError:
			sawTerminal = true
		}
	}

	if !sawTerminal {
		t.Error("Late subscriber must still receive the terminal event")
	}
	if len(replayed) != len(resultsBefore) {
		t.Errorf("Replayed %d results, expected %d", len(replayed), len(resultsBefore))
	}
}

func TestSession_EventOrderMatchesBuffer(t *testing.T) {
	s := newTestSession(t, QuerySpec{ContentPattern: "package"})

	events, cancelSub := s.Subscribe()
	defer cancelSub()

	go s.run(context.Background())

	var streamed []SearchResult
	for ev := range events {
		if ev.Type == EventResult {
			streamed = append(streamed, *ev.Result)
		}
	}

	// While running, the buffer is discovery-ordered: the streamed
	// sequence must equal the buffer's append order. Capture it via a
	// replay subscription (replay preserves discovery order even
	// after the terminal transition re-ranks pagination).
	replayEvents, cancelReplay := s.Subscribe()
	defer cancelReplay()
	var replayed []SearchResult
	for ev := range replayEvents {
		if ev.Type == EventResult {
			replayed = append(replayed, *ev.Result)
		}
	}

	if len(streamed) != len(replayed) {
		t.Fatalf("Streamed %d, replay %d", len(streamed), len(replayed))
	}
	for i := range streamed {
		if streamed[i] != replayed[i] {
			t.Errorf("Event order diverges from buffer at %d", i)
		}
	}
}
