package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// errorResult wraps a message into an MCP error result. Domain errors
// are reported through IsError rather than the protocol error return,
// so callers can read them.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

// textResult wraps plain text into a successful MCP result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// jsonResult serializes a payload as indented JSON text.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Failed to encode response: %s", err)
	}
	return textResult(string(data))
}

// engineErrorResult maps engine errors to tool error results.
func engineErrorResult(err error) *mcp.CallToolResult {
	var vErr *engine.ValidationError
	switch {
	case errors.As(err, &vErr):
		return errorResult("Invalid query: %s", vErr)
	case errors.Is(err, engine.ErrCapacity):
		return errorResult("Too many concurrent searches. Cancel one or retry after a running search finishes.")
	case errors.Is(err, engine.ErrNotFound):
		return errorResult("Unknown session ID. The session may have expired and been reaped.")
	case errors.Is(err, engine.ErrAlreadyTerminal):
		return errorResult("Session has already finished; there is nothing to cancel.")
	default:
		return errorResult("Search engine error: %s", err)
	}
}
