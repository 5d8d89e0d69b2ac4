package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// defaultFuzzyThreshold applies when fuzzy_search is requested without
// an explicit threshold.
const defaultFuzzyThreshold = 0.7

// SubmitArgument defines the parameters of a new history search.
type SubmitArgument struct {
	RepositoryPath string `json:"repository_path" jsonschema_description:"Absolute path to the local git repository to search"`
	Branch         string `json:"branch,omitempty" jsonschema_description:"Branch or ref to walk (defaults to HEAD)"`

	ContentPattern string `json:"content_pattern,omitempty" jsonschema_description:"Pattern matched against file content lines; treated as a regular expression, or literally if it does not compile"`
	CaseSensitive  bool   `json:"case_sensitive,omitempty" jsonschema_description:"Match content case-sensitively (default false)"`

	FuzzySearch    bool    `json:"fuzzy_search,omitempty" jsonschema_description:"Use approximate matching for content_pattern instead of exact/regex matching"`
	FuzzyThreshold float64 `json:"fuzzy_threshold,omitempty" jsonschema_description:"Minimum similarity in [0,1] for fuzzy matches (default 0.7)"`
	FuzzyMetric    string  `json:"fuzzy_metric,omitempty" jsonschema_description:"Fuzzy similarity metric: levenshtein (default) or subsequence"`

	CommitHash      string `json:"commit_hash,omitempty" jsonschema_description:"Full or prefix commit hash; restricts the walk to matching commits"`
	AuthorPattern   string `json:"author_pattern,omitempty" jsonschema_description:"Regular expression matched against author name and email"`
	MessagePattern  string `json:"message_pattern,omitempty" jsonschema_description:"Regular expression matched against commit messages"`
	FilePathPattern string `json:"file_path_pattern,omitempty" jsonschema_description:"Regular expression matched against changed file paths"`

	FileExtensions []string `json:"file_extensions,omitempty" jsonschema_description:"Restrict matches to these file extensions (e.g. go, py)"`
	IncludeGlobs   []string `json:"include_globs,omitempty" jsonschema_description:"Only files matching at least one glob are considered"`
	ExcludeGlobs   []string `json:"exclude_globs,omitempty" jsonschema_description:"Files matching any glob are skipped"`

	DateFrom string `json:"date_from,omitempty" jsonschema_description:"Only commits at or after this RFC 3339 timestamp"`
	DateTo   string `json:"date_to,omitempty" jsonschema_description:"Only commits at or before this RFC 3339 timestamp"`

	MaxResults       int   `json:"max_results,omitempty" jsonschema_description:"Stop the search after this many results (0 = unlimited)"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty" jsonschema_description:"Skip files larger than this many bytes"`
	TimeoutSeconds   int   `json:"timeout_seconds,omitempty" jsonschema_description:"Overall search timeout in seconds (default 300)"`
}

// SubmitHandler handles the submit_search MCP tool.
type SubmitHandler struct {
	registry *engine.Registry
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(registry *engine.Registry) *SubmitHandler {
	return &SubmitHandler{registry: registry}
}

// Handle validates the arguments, admits the session, and returns its ID.
// The search itself runs in the background; poll search_status or read
// search_results to follow it.
func (h *SubmitHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SubmitArgument) (*mcp.CallToolResult, any, error) {
	spec, err := args.toQuerySpec()
	if err != nil {
		return errorResult("Invalid query: %s", err), nil, nil
	}

	session, err := h.registry.Create(spec)
	if err != nil {
		return engineErrorResult(err), nil, nil
	}

	status := session.Status()
	return jsonResult(map[string]any{
		"session_id": session.ID(),
		"state":      status.State,
		"created_at": status.CreatedAt,
	}), nil, nil
}

// toQuerySpec converts tool arguments into an engine QuerySpec.
func (a SubmitArgument) toQuerySpec() (engine.QuerySpec, error) {
	spec := engine.QuerySpec{
		RepositoryPath:   a.RepositoryPath,
		Branch:           a.Branch,
		ContentPattern:   a.ContentPattern,
		CaseSensitive:    a.CaseSensitive,
		FuzzySearch:      a.FuzzySearch,
		FuzzyThreshold:   a.FuzzyThreshold,
		FuzzyMetric:      a.FuzzyMetric,
		CommitHash:       a.CommitHash,
		AuthorPattern:    a.AuthorPattern,
		MessagePattern:   a.MessagePattern,
		FilePathPattern:  a.FilePathPattern,
		FileExtensions:   a.FileExtensions,
		IncludeGlobs:     a.IncludeGlobs,
		ExcludeGlobs:     a.ExcludeGlobs,
		MaxResults:       a.MaxResults,
		MaxFileSizeBytes: a.MaxFileSizeBytes,
		TimeoutSeconds:   a.TimeoutSeconds,
	}

	if a.FuzzySearch && a.FuzzyThreshold == 0 {
		spec.FuzzyThreshold = defaultFuzzyThreshold
	}

	if a.DateFrom != "" {
		from, err := time.Parse(time.RFC3339, a.DateFrom)
		if err != nil {
			return spec, fmt.Errorf("date_from is not a valid RFC 3339 timestamp: %w", err)
		}
		spec.DateFrom = &from
	}
	if a.DateTo != "" {
		to, err := time.Parse(time.RFC3339, a.DateTo)
		if err != nil {
			return spec, fmt.Errorf("date_to is not a valid RFC 3339 timestamp: %w", err)
		}
		spec.DateTo = &to
	}

	return spec, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SubmitHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "submit_search",
		Description: "Start a background search over a git repository's commit history. Combines content, fuzzy, commit, author, message, path, and date criteria. Returns a session ID for status polling and result retrieval.",
	}
}

// RegisterSubmitTool registers the submit tool with an MCP server.
func RegisterSubmitTool(server *mcp.Server, registry *engine.Registry) {
	handler := NewSubmitHandler(registry)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
