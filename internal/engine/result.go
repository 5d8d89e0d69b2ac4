package engine

import "time"

// SearchType identifies which criterion produced a result.
type SearchType string

const (
	SearchTypeContent SearchType = "content"
	SearchTypeFuzzy   SearchType = "fuzzy"
	SearchTypeCommit  SearchType = "commit"
	SearchTypeAuthor  SearchType = "author"
	SearchTypeMessage SearchType = "message"
	SearchTypePath    SearchType = "path"
	SearchTypeDate    SearchType = "date"
)

// SearchResult is a single match produced by a search session.
// Results are immutable once produced.
type SearchResult struct {
	CommitHash     string     `json:"commit_hash"`
	FilePath       string     `json:"file_path,omitempty"`
	SearchType     SearchType `json:"search_type"`
	RelevanceScore float64    `json:"relevance_score"`
	MatchingLine   string     `json:"matching_line,omitempty"`
	LineNumber     int        `json:"line_number,omitempty"`
	AuthorName     string     `json:"author_name,omitempty"`
	CommitDate     time.Time  `json:"commit_date"`
	CommitMessage  string     `json:"commit_message,omitempty"`
}

// SessionState is the lifecycle state of a search session.
type SessionState string

const (
	StatePending   SessionState = "pending"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateCancelled SessionState = "cancelled"
	StateFailed    SessionState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// EventType identifies a progress event variant.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventResult    EventType = "result"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// ProgressEvent is one entry in a session's ordered event stream.
// Result events carry a Result; Completed/Error is always the last
// event published for a session. The shape is relayed verbatim by
// push transports.
type ProgressEvent struct {
	Type         EventType     `json:"type"`
	Ratio        float64       `json:"ratio,omitempty"`
	Message      string        `json:"message,omitempty"`
	ResultsSoFar int           `json:"results_so_far,omitempty"`
	Result       *SearchResult `json:"result,omitempty"`
	TotalResults int           `json:"total_results,omitempty"`
	DurationMs   int64         `json:"duration_ms,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// terminal reports whether the event ends a session's stream.
func (e ProgressEvent) terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// SessionStatus is a point-in-time snapshot of a session, safe to
// read while the walk is still running.
type SessionStatus struct {
	ID            string       `json:"id"`
	State         SessionState `json:"state"`
	Progress      float64      `json:"progress"`
	ResultsCount  int          `json:"results_count"`
	CommitsWalked int          `json:"commits_walked"`
	FilesWalked   int          `json:"files_walked"`
	SkippedItems  int          `json:"skipped_items"`
	TimedOut      bool         `json:"timed_out,omitempty"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	StartedAt     time.Time    `json:"started_at,omitzero"`
	FinishedAt    time.Time    `json:"finished_at,omitzero"`
}

// ResultsMetadata aggregates walk counters for a results page or export.
type ResultsMetadata struct {
	TotalCount    int          `json:"total_count"`
	CommitsWalked int          `json:"commits_walked"`
	FilesWalked   int          `json:"files_walked"`
	SkippedItems  int          `json:"skipped_items"`
	DurationMs    int64        `json:"duration_ms"`
	State         SessionState `json:"state"`
	TimedOut      bool         `json:"timed_out,omitempty"`
	Error         string       `json:"error,omitempty"`
}
