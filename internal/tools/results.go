package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// DefaultPageSize is used when a results request gives no page size.
const DefaultPageSize = 50

// ResultsArgument defines result retrieval parameters.
type ResultsArgument struct {
	SessionID       string `json:"session_id" jsonschema_description:"Session ID returned by submit_search"`
	Page            int    `json:"page,omitempty" jsonschema_description:"1-based page number (default 1)"`
	PageSize        int    `json:"page_size,omitempty" jsonschema_description:"Results per page (default 50); 0 uses the default"`
	IncludeMetadata bool   `json:"include_metadata,omitempty" jsonschema_description:"Include walk counters and session state with the page"`
}

// ResultsHandler handles the search_results MCP tool.
type ResultsHandler struct {
	registry *engine.Registry
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(registry *engine.Registry) *ResultsHandler {
	return &ResultsHandler{registry: registry}
}

// Handle returns one page of results plus walk metadata. Pages of a
// running session follow discovery order and are stable across calls;
// a finished session pages over the relevance-ranked results.
func (h *ResultsHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ResultsArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.SessionID) == "" {
		return errorResult("Session ID cannot be empty"), nil, nil
	}
	if args.Page < 0 {
		return errorResult("Page must be positive"), nil, nil
	}
	if args.PageSize < 0 {
		return errorResult("Page size must not be negative"), nil, nil
	}

	session, err := h.registry.Get(args.SessionID)
	if err != nil {
		return engineErrorResult(err), nil, nil
	}

	page := args.Page
	if page == 0 {
		page = 1
	}
	pageSize := args.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	results, meta := session.Results(page, pageSize)
	payload := map[string]any{
		"results":   results,
		"page":      page,
		"page_size": pageSize,
	}
	if args.IncludeMetadata {
		payload["metadata"] = meta
	}
	return jsonResult(payload), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ResultsHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_results",
		Description: "Read a page of search results. Works on running sessions (partial, discovery-ordered results) and finished ones (relevance-ranked results).",
	}
}

// RegisterResultsTool registers the results tool with an MCP server.
func RegisterResultsTool(server *mcp.Server, registry *engine.Registry) {
	handler := NewResultsHandler(registry)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
