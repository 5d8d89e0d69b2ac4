package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// StatusArgument defines status query parameters.
type StatusArgument struct {
	SessionID string `json:"session_id" jsonschema_description:"Session ID returned by submit_search"`
}

// StatusHandler handles the search_status MCP tool.
type StatusHandler struct {
	registry *engine.Registry
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(registry *engine.Registry) *StatusHandler {
	return &StatusHandler{registry: registry}
}

// Handle returns a point-in-time snapshot of the session.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.SessionID) == "" {
		return errorResult("Session ID cannot be empty"), nil, nil
	}

	session, err := h.registry.Get(args.SessionID)
	if err != nil {
		return engineErrorResult(err), nil, nil
	}

	return jsonResult(session.Status()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_status",
		Description: "Report the state, progress, and counters of a search session",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, registry *engine.Registry) {
	handler := NewStatusHandler(registry)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
