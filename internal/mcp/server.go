package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/commitindex"
	"github.com/noamw/histscan-mcp/internal/engine"
	"github.com/noamw/histscan-mcp/internal/tools"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Registry backs the search session tools. Required.
	Registry *engine.Registry

	// Lookup backs the commit lookup tool. Optional; when nil the
	// lookup tool is not registered.
	Lookup *commitindex.Manager
}

// CreateServer creates the MCP server and registers the search tools
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Registry != nil {
		tools.RegisterSubmitTool(s, cfg.Registry)
		tools.RegisterStatusTool(s, cfg.Registry)
		tools.RegisterResultsTool(s, cfg.Registry)
		tools.RegisterCancelTool(s, cfg.Registry)
		tools.RegisterExportTool(s, cfg.Registry)
	}

	if cfg.Lookup != nil {
		tools.RegisterLookupTool(s, cfg.Lookup)
	}

	return s
}
