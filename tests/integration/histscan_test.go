package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/noamw/histscan-mcp/internal/app"
	"github.com/noamw/histscan-mcp/internal/commitindex"
	"github.com/noamw/histscan-mcp/internal/config"
	"github.com/noamw/histscan-mcp/internal/engine"
	"github.com/noamw/histscan-mcp/internal/gitio"
	"github.com/noamw/histscan-mcp/internal/tools"
	"github.com/noamw/histscan-mcp/tests/integration/testkit"
)

// ========================================
// Fixtures and Helpers
// ========================================

// historyReader builds an in-memory repository with three commits,
// newest first, covering content, author, and message criteria.
func historyReader() *gitio.FakeReader {
	return &gitio.FakeReader{
		Commits: []gitio.FakeCommit{
			{
				Meta: gitio.CommitMeta{
					Hash:        "ccc333",
					Author:      "Carol",
					AuthorEmail: "carol@example.com",
					Date:        time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
					Message:     "Add search endpoint",
				},
				Files: map[string]string{
					"api/search.go": "package api\n\nfunc Search(q string) error {\n\treturn nil\n}\n",
					"docs/api.md":   "# API\n\nThe search endpoint accepts a query string.\n",
				},
			},
			{
				Meta: gitio.CommitMeta{
					Hash:        "bbb222",
					Author:      "Bob",
					AuthorEmail: "bob@example.com",
					Date:        time.Date(2024, 2, 5, 9, 30, 0, 0, time.UTC),
					Message:     "Fix error handling in search path",
				},
				Files: map[string]string{
					"api/errors.go": "package api\n\nvar ErrBadQuery = errBadQuery()\n",
				},
			},
			{
				Meta: gitio.CommitMeta{
					Hash:        "aaa111",
					Author:      "Alice",
					AuthorEmail: "alice@example.com",
					Date:        time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
					Message:     "Initial commit",
				},
				Files: map[string]string{
					"main.go": "package main\n\nfunc main() {}\n",
				},
			},
		},
	}
}

func setupRegistry(t *testing.T, reader gitio.RepositoryReader) *engine.Registry {
	t.Helper()

	registry := engine.NewRegistry(engine.RegistryConfig{
		MaxSessions:      4,
		Retention:        time.Minute,
		ReapInterval:     time.Hour,
		SubscriberBuffer: 16,
		NewReader: func(string) gitio.RepositoryReader {
			return reader
		},
	})
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func extractTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// submitSearch submits a query through the submit_search handler and
// returns the new session's ID.
func submitSearch(t *testing.T, registry *engine.Registry, args tools.SubmitArgument) string {
	t.Helper()

	if args.RepositoryPath == "" {
		args.RepositoryPath = "/tmp/fixture-repo"
	}

	handler := tools.NewSubmitHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, args)
	if err != nil {
		t.Fatalf("Submit handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Submit failed: %s", extractTextContent(result))
	}

	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(extractTextContent(result)), &payload); err != nil {
		t.Fatalf("Failed to parse submit response: %v", err)
	}
	if payload.SessionID == "" {
		t.Fatal("Expected non-empty session_id")
	}
	return payload.SessionID
}

// waitTerminal blocks until the session leaves its running states.
func waitTerminal(t *testing.T, registry *engine.Registry, id string) {
	t.Helper()

	session, err := registry.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Session %s did not finish in time", id)
	}
}

func getStatus(t *testing.T, registry *engine.Registry, id string) engine.SessionStatus {
	t.Helper()

	handler := tools.NewStatusHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.StatusArgument{SessionID: id})
	if err != nil {
		t.Fatalf("Status handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Status failed: %s", extractTextContent(result))
	}

	var status engine.SessionStatus
	if err := json.Unmarshal([]byte(extractTextContent(result)), &status); err != nil {
		t.Fatalf("Failed to parse status response: %v", err)
	}
	return status
}

type resultsPayload struct {
	Results  []engine.SearchResult   `json:"results"`
	Metadata *engine.ResultsMetadata `json:"metadata"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

func getResults(t *testing.T, registry *engine.Registry, args tools.ResultsArgument) resultsPayload {
	t.Helper()

	handler := tools.NewResultsHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, args)
	if err != nil {
		t.Fatalf("Results handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Results failed: %s", extractTextContent(result))
	}

	var payload resultsPayload
	if err := json.Unmarshal([]byte(extractTextContent(result)), &payload); err != nil {
		t.Fatalf("Failed to parse results response: %v", err)
	}
	return payload
}

// ========================================
// Search Flow Tests
// ========================================

func TestSearchFlow_ContentQuery(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	id := submitSearch(t, registry, tools.SubmitArgument{
		ContentPattern: "func Search",
	})
	waitTerminal(t, registry, id)

	status := getStatus(t, registry, id)
	if status.State != engine.StateCompleted {
		t.Fatalf("Expected completed state, got %s (error: %s)", status.State, status.Error)
	}
	if status.ResultsCount != 1 {
		t.Errorf("Expected 1 result, got %d", status.ResultsCount)
	}
	if status.CommitsWalked != 3 {
		t.Errorf("Expected 3 commits walked, got %d", status.CommitsWalked)
	}
	if status.Progress != 1.0 {
		t.Errorf("Expected progress 1.0, got %f", status.Progress)
	}

	payload := getResults(t, registry, tools.ResultsArgument{SessionID: id, IncludeMetadata: true})
	if len(payload.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(payload.Results))
	}

	match := payload.Results[0]
	if match.CommitHash != "ccc333" {
		t.Errorf("Expected commit ccc333, got %s", match.CommitHash)
	}
	if match.FilePath != "api/search.go" {
		t.Errorf("Expected api/search.go, got %s", match.FilePath)
	}
	if match.LineNumber != 3 {
		t.Errorf("Expected line 3, got %d", match.LineNumber)
	}
	if match.SearchType != engine.SearchTypeContent {
		t.Errorf("Expected content search type, got %s", match.SearchType)
	}
	if payload.Metadata == nil || payload.Metadata.TotalCount != 1 {
		t.Errorf("Expected metadata with total_count 1, got %+v", payload.Metadata)
	}
}

func TestSearchFlow_AuthorAndMessageCriteria(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	id := submitSearch(t, registry, tools.SubmitArgument{
		AuthorPattern:  "Alice",
		MessagePattern: "Initial",
	})
	waitTerminal(t, registry, id)

	// Each matching criterion surfaces its own result for the commit.
	payload := getResults(t, registry, tools.ResultsArgument{SessionID: id})
	if len(payload.Results) != 2 {
		t.Fatalf("Expected 2 results (author + message), got %d", len(payload.Results))
	}
	types := map[engine.SearchType]bool{}
	for _, r := range payload.Results {
		if r.CommitHash != "aaa111" {
			t.Errorf("Expected commit aaa111, got %s", r.CommitHash)
		}
		if r.AuthorName != "Alice" {
			t.Errorf("Expected author Alice, got %s", r.AuthorName)
		}
		types[r.SearchType] = true
	}
	if !types[engine.SearchTypeAuthor] || !types[engine.SearchTypeMessage] {
		t.Errorf("Expected author and message result types, got %v", types)
	}
}

func TestSearchFlow_DateRangeNarrowsWalk(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	id := submitSearch(t, registry, tools.SubmitArgument{
		ContentPattern: "package",
		DateFrom:       "2024-03-01T00:00:00Z",
	})
	waitTerminal(t, registry, id)

	payload := getResults(t, registry, tools.ResultsArgument{SessionID: id})
	for _, r := range payload.Results {
		if r.CommitHash != "ccc333" {
			t.Errorf("Expected only ccc333 results, got %s", r.CommitHash)
		}
	}
	if len(payload.Results) == 0 {
		t.Error("Expected results from the newest commit")
	}
}

func TestSearchFlow_FuzzyQuery(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	id := submitSearch(t, registry, tools.SubmitArgument{
		ContentPattern: "func Serch",
		FuzzySearch:    true,
		FuzzyThreshold: 0.6,
	})
	waitTerminal(t, registry, id)

	status := getStatus(t, registry, id)
	if status.State != engine.StateCompleted {
		t.Fatalf("Expected completed state, got %s", status.State)
	}

	payload := getResults(t, registry, tools.ResultsArgument{SessionID: id})
	if len(payload.Results) == 0 {
		t.Fatal("Expected at least one fuzzy result")
	}

	top := payload.Results[0]
	if top.FilePath != "api/search.go" {
		t.Errorf("Expected top fuzzy match in api/search.go, got %s", top.FilePath)
	}
	if top.SearchType != engine.SearchTypeFuzzy {
		t.Errorf("Expected fuzzy search type, got %s", top.SearchType)
	}
	if top.RelevanceScore < 0.6 {
		t.Errorf("Expected score >= 0.6, got %f", top.RelevanceScore)
	}
}

func TestSearchFlow_CancelMidRun(t *testing.T) {
	reader := historyReader()
	reader.CommitDelay = 200 * time.Millisecond
	registry := setupRegistry(t, reader)

	id := submitSearch(t, registry, tools.SubmitArgument{
		ContentPattern: "package",
	})

	handler := tools.NewCancelHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.CancelArgument{SessionID: id})
	if err != nil {
		t.Fatalf("Cancel handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Cancel failed: %s", extractTextContent(result))
	}
	if !strings.Contains(extractTextContent(result), "Cancellation requested") {
		t.Errorf("Unexpected cancel response: %s", extractTextContent(result))
	}

	waitTerminal(t, registry, id)

	status := getStatus(t, registry, id)
	if status.State != engine.StateCancelled {
		t.Errorf("Expected cancelled state, got %s", status.State)
	}

	// Partial results remain readable after cancellation.
	getResults(t, registry, tools.ResultsArgument{SessionID: id})
}

func TestSearchFlow_InvalidQuery(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	handler := tools.NewSubmitHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.SubmitArgument{
		RepositoryPath: "/tmp/fixture-repo",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected error for query with no criteria")
	}
	if !strings.Contains(extractTextContent(result), "Invalid query") {
		t.Errorf("Unexpected error message: %s", extractTextContent(result))
	}
}

func TestSearchFlow_UnknownSession(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	handler := tools.NewStatusHandler(registry)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.StatusArgument{SessionID: "no-such-session"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected error for unknown session")
	}
	if !strings.Contains(extractTextContent(result), "Unknown session") {
		t.Errorf("Unexpected error message: %s", extractTextContent(result))
	}
}

// ========================================
// Export Tests
// ========================================

func TestExportFlow_Formats(t *testing.T) {
	registry := setupRegistry(t, historyReader())

	id := submitSearch(t, registry, tools.SubmitArgument{
		ContentPattern: "func Search",
	})
	waitTerminal(t, registry, id)

	handler := tools.NewExportHandler(registry)
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		result, _, err := handler.Handle(ctx, &mcp.CallToolRequest{}, tools.ExportArgument{
			SessionID:       id,
			Format:          "json",
			IncludeMetadata: true,
		})
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if result.IsError {
			t.Fatalf("Export failed: %s", extractTextContent(result))
		}

		var doc struct {
			Results  []engine.SearchResult   `json:"results"`
			Metadata *engine.ResultsMetadata `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(extractTextContent(result)), &doc); err != nil {
			t.Fatalf("Export is not valid JSON: %v", err)
		}
		if len(doc.Results) != 1 {
			t.Errorf("Expected 1 exported result, got %d", len(doc.Results))
		}
		if doc.Metadata == nil || doc.Metadata.State != engine.StateCompleted {
			t.Errorf("Expected completed metadata, got %+v", doc.Metadata)
		}
	})

	t.Run("csv", func(t *testing.T) {
		result, _, err := handler.Handle(ctx, &mcp.CallToolRequest{}, tools.ExportArgument{
			SessionID: id,
			Format:    "csv",
		})
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if result.IsError {
			t.Fatalf("Export failed: %s", extractTextContent(result))
		}

		content := extractTextContent(result)
		if !strings.HasPrefix(content, "commit_hash,file_path,") {
			t.Errorf("Expected CSV header, got: %s", content)
		}
		if !strings.Contains(content, "ccc333") {
			t.Errorf("Expected commit hash in CSV, got: %s", content)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		result, _, err := handler.Handle(ctx, &mcp.CallToolRequest{}, tools.ExportArgument{
			SessionID: id,
			Format:    "yaml",
		})
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if result.IsError {
			t.Fatalf("Export failed: %s", extractTextContent(result))
		}

		content := extractTextContent(result)
		if !strings.Contains(content, "results:") {
			t.Errorf("Expected YAML results key, got: %s", content)
		}
		if !strings.Contains(content, "ccc333") {
			t.Errorf("Expected commit hash in YAML, got: %s", content)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		result, _, err := handler.Handle(ctx, &mcp.CallToolRequest{}, tools.ExportArgument{
			SessionID: id,
			Format:    "xml",
		})
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if !result.IsError {
			t.Fatal("Expected error for unsupported format")
		}
	})
}

// ========================================
// Commit Lookup Tests
// ========================================

func TestLookupFlow_FindsCommitsByMessage(t *testing.T) {
	reader := historyReader()
	manager := commitindex.NewManager(func(string) gitio.RepositoryReader {
		return reader
	}, time.Minute)
	t.Cleanup(func() { _ = manager.Close() })

	handler := tools.NewLookupHandler(manager)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.LookupArgument{
		RepositoryPath: "/tmp/fixture-repo",
		Query:          "search",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Lookup failed: %s", extractTextContent(result))
	}

	var payload struct {
		Commits []commitindex.LookupHit `json:"commits"`
		Indexed int                     `json:"indexed_commits"`
	}
	if err := json.Unmarshal([]byte(extractTextContent(result)), &payload); err != nil {
		t.Fatalf("Failed to parse lookup response: %v", err)
	}
	if payload.Indexed != 3 {
		t.Errorf("Expected 3 indexed commits, got %d", payload.Indexed)
	}
	if len(payload.Commits) != 2 {
		t.Fatalf("Expected 2 hits for 'search', got %d", len(payload.Commits))
	}
	for _, hit := range payload.Commits {
		if hit.Hash == "aaa111" {
			t.Errorf("Did not expect the initial commit, got %+v", hit)
		}
	}
}

func TestLookupFlow_AuthorFilter(t *testing.T) {
	reader := historyReader()
	manager := commitindex.NewManager(func(string) gitio.RepositoryReader {
		return reader
	}, time.Minute)
	t.Cleanup(func() { _ = manager.Close() })

	handler := tools.NewLookupHandler(manager)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tools.LookupArgument{
		RepositoryPath: "/tmp/fixture-repo",
		Query:          "search",
		Author:         "Bob",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Lookup failed: %s", extractTextContent(result))
	}

	var payload struct {
		Commits []commitindex.LookupHit `json:"commits"`
	}
	if err := json.Unmarshal([]byte(extractTextContent(result)), &payload); err != nil {
		t.Fatalf("Failed to parse lookup response: %v", err)
	}
	if len(payload.Commits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(payload.Commits))
	}
	if payload.Commits[0].Hash != "bbb222" {
		t.Errorf("Expected bbb222, got %s", payload.Commits[0].Hash)
	}
}

// ========================================
// Git-Backed End-to-End Tests
// ========================================

// TestGitBackedSearch drives a real GitReader through a mocked git
// CLI, covering the log/diff-tree/show plumbing end to end.
func TestGitBackedSearch(t *testing.T) {
	executor := gitio.NewMockExecutor()

	logRecord := strings.Join([]string{
		"ccc333", "Carol", "carol@example.com", "2024-03-10T12:00:00Z", "Add search endpoint\n",
	}, "\x1f") + "\x1e"
	executor.AddResponse("git log", []byte(logRecord), nil)
	executor.AddResponse("git diff-tree --no-commit-id --name-only --root -r ccc333",
		[]byte("api/search.go\n"), nil)
	executor.AddResponse("git show ccc333:api/search.go",
		[]byte("package api\n\nfunc Search(q string) error {\n\treturn nil\n}\n"), nil)

	registry := engine.NewRegistry(engine.RegistryConfig{
		MaxSessions:      2,
		Retention:        time.Minute,
		ReapInterval:     time.Hour,
		SubscriberBuffer: 16,
		NewReader: func(path string) gitio.RepositoryReader {
			return gitio.NewGitReaderWithExecutor(path, executor)
		},
	})
	t.Cleanup(func() { _ = registry.Close() })

	id := submitSearch(t, registry, tools.SubmitArgument{
		RepositoryPath: "/tmp/git-repo",
		ContentPattern: "func Search",
	})
	waitTerminal(t, registry, id)

	status := getStatus(t, registry, id)
	if status.State != engine.StateCompleted {
		t.Fatalf("Expected completed state, got %s (error: %s)", status.State, status.Error)
	}

	payload := getResults(t, registry, tools.ResultsArgument{SessionID: id})
	if len(payload.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(payload.Results))
	}
	if payload.Results[0].CommitHash != "ccc333" {
		t.Errorf("Expected commit ccc333, got %s", payload.Results[0].CommitHash)
	}
	if payload.Results[0].AuthorName != "Carol" {
		t.Errorf("Expected author Carol, got %s", payload.Results[0].AuthorName)
	}

	// The walk ran in the repository directory the session was given.
	for _, call := range executor.GetCalls() {
		if call.Dir != "/tmp/git-repo" {
			t.Errorf("Expected calls in /tmp/git-repo, got %s", call.Dir)
		}
	}
}

// ========================================
// SSE Server Tests
// ========================================

func TestSSEServer_HealthEndpoint(t *testing.T) {
	flags := testkit.NewTestFlags(t, nil)

	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("LoadSettingsWithFlags failed: %v", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		t.Fatalf("ValidateSettings failed: %v", err)
	}

	mcpServer, cleanup, err := app.CreateMCPServer(settings)
	if err != nil {
		t.Fatalf("CreateMCPServer failed: %v", err)
	}
	defer cleanup()

	srv := app.NewSSEServer(mcpServer, settings)
	go func() { _ = srv.ListenAndServe() }()
	defer func() { _ = srv.Close() }()

	url := fmt.Sprintf("http://%s:%d/health", settings.Host, settings.Port)

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Health endpoint never came up: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("Expected body 'ok', got %q", string(body))
	}
}
