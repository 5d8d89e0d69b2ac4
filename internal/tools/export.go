package tools

import (
	"bytes"
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/engine"
)

// ExportArgument defines export parameters.
type ExportArgument struct {
	SessionID       string `json:"session_id" jsonschema_description:"Session ID returned by submit_search"`
	Format          string `json:"format,omitempty" jsonschema_description:"Export format: json (default), csv, or yaml"`
	IncludeMetadata bool   `json:"include_metadata,omitempty" jsonschema_description:"Include walk counters and session state in the export"`
}

// ExportHandler handles the export_results MCP tool.
type ExportHandler struct {
	registry *engine.Registry
}

// NewExportHandler creates a new export handler.
func NewExportHandler(registry *engine.Registry) *ExportHandler {
	return &ExportHandler{registry: registry}
}

// Handle serializes a consistent snapshot of the session's results.
// Exporting a running session is allowed and captures the results
// found so far.
func (h *ExportHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ExportArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.SessionID) == "" {
		return errorResult("Session ID cannot be empty"), nil, nil
	}

	formatName := args.Format
	if formatName == "" {
		formatName = string(engine.FormatJSON)
	}
	format, err := engine.ParseExportFormat(formatName)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}

	session, err := h.registry.Get(args.SessionID)
	if err != nil {
		return engineErrorResult(err), nil, nil
	}

	var buf bytes.Buffer
	if err := engine.ExportSession(&buf, session, format, args.IncludeMetadata); err != nil {
		return errorResult("Export failed: %s", err), nil, nil
	}

	return textResult(buf.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ExportHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "export_results",
		Description: "Export a session's search results as JSON, CSV, or YAML",
	}
}

// RegisterExportTool registers the export tool with an MCP server.
func RegisterExportTool(server *mcp.Server, registry *engine.Registry) {
	handler := NewExportHandler(registry)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
