package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// CancelArgument defines cancellation parameters.
type CancelArgument struct {
	SessionID string `json:"session_id" jsonschema_description:"Session ID returned by submit_search"`
}

// CancelHandler handles the cancel_search MCP tool.
type CancelHandler struct {
	registry *engine.Registry
}

// NewCancelHandler creates a new cancel handler.
func NewCancelHandler(registry *engine.Registry) *CancelHandler {
	return &CancelHandler{registry: registry}
}

// Handle requests cancellation of a running session. Cancellation is
// cooperative: the walk stops at its next poll point and results found
// so far stay readable.
func (h *CancelHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args CancelArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.SessionID) == "" {
		return errorResult("Session ID cannot be empty"), nil, nil
	}

	if err := h.registry.Cancel(args.SessionID); err != nil {
		return engineErrorResult(err), nil, nil
	}

	return textResult("Cancellation requested. Partial results remain available via search_results."), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *CancelHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "cancel_search",
		Description: "Cancel a running search session, keeping the results found so far",
	}
}

// RegisterCancelTool registers the cancel tool with an MCP server.
func RegisterCancelTool(server *mcp.Server, registry *engine.Registry) {
	handler := NewCancelHandler(registry)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
