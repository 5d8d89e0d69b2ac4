package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/commitindex"
)

// LookupArgument defines commit lookup parameters.
type LookupArgument struct {
	RepositoryPath string `json:"repository_path" jsonschema_description:"Absolute path to the local git repository"`
	Query          string `json:"query,omitempty" jsonschema_description:"Free-text query matched against commit messages and author names"`
	HashPrefix     string `json:"hash_prefix,omitempty" jsonschema_description:"Full or abbreviated commit hash to resolve to full hashes, instead of a free-text query"`
	Author         string `json:"author,omitempty" jsonschema_description:"Restrict hits to commits by this author"`
	Limit          int    `json:"limit,omitempty" jsonschema_description:"Maximum number of commits to return (default 10)"`
}

// LookupHandler handles the lookup_commits MCP tool. Unlike
// submit_search it answers synchronously from an in-memory metadata
// index, so it suits quick "which commit was that" questions that do
// not need file content.
type LookupHandler struct {
	manager *commitindex.Manager
}

// NewLookupHandler creates a new lookup handler.
func NewLookupHandler(manager *commitindex.Manager) *LookupHandler {
	return &LookupHandler{manager: manager}
}

// Handle builds or reuses the repository's commit index and runs the
// query, either a free-text lookup or an abbreviated-hash resolution.
func (h *LookupHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args LookupArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.RepositoryPath) == "" {
		return errorResult("Repository path cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Query) == "" && strings.TrimSpace(args.HashPrefix) == "" {
		return errorResult("Either query or hash_prefix is required"), nil, nil
	}

	index, err := h.manager.ForRepository(ctx, args.RepositoryPath)
	if err != nil {
		return errorResult("Failed to index repository commits: %s", err), nil, nil
	}
	defer func() { _ = index.Close() }()

	if strings.TrimSpace(args.HashPrefix) != "" {
		hashes, err := index.ResolveHash(args.HashPrefix)
		if err != nil {
			return errorResult("Hash resolution failed: %s", err), nil, nil
		}
		if len(hashes) == 0 {
			return textResult(fmt.Sprintf("No commits found with hash prefix: %s", args.HashPrefix)), nil, nil
		}
		return jsonResult(map[string]any{
			"hashes":          hashes,
			"indexed_commits": index.CommitCount(),
		}), nil, nil
	}

	hits, err := index.Lookup(commitindex.LookupRequest{
		Text:   args.Query,
		Author: args.Author,
		Limit:  args.Limit,
	})
	if err != nil {
		return errorResult("Lookup failed: %s", err), nil, nil
	}

	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No commits found for query: %s", args.Query)), nil, nil
	}

	return jsonResult(map[string]any{
		"commits":         hits,
		"indexed_commits": index.CommitCount(),
	}), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *LookupHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lookup_commits",
		Description: "Find commits by free-text search over commit messages and authors, or resolve an abbreviated commit hash, without walking file contents",
	}
}

// RegisterLookupTool registers the lookup tool with an MCP server.
func RegisterLookupTool(server *mcp.Server, manager *commitindex.Manager) {
	handler := NewLookupHandler(manager)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
