package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/noamw/histscan-mcp/internal/commitindex"
	"github.com/noamw/histscan-mcp/internal/config"
	"github.com/noamw/histscan-mcp/internal/engine"
	mcputil "github.com/noamw/histscan-mcp/internal/mcp"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting histscan MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	} else {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(mcpServer, settings)
	}
}

// CreateMCPServer creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	registry := engine.NewRegistry(engine.RegistryConfig{
		MaxSessions:      settings.Search.MaxSessions,
		Retention:        settings.Search.Retention,
		ReapInterval:     settings.Search.ReapInterval,
		SubscriberBuffer: settings.Search.SubscriberBuffer,
		DefaultTimeout:   settings.Search.DefaultTimeout,
		MaxFileSize:      settings.Search.MaxFileSize,
	})

	var lookup *commitindex.Manager
	if settings.Lookup.Enabled {
		lookup = commitindex.NewManager(nil, settings.Lookup.IndexTTL)
	}

	cleanup := func() {
		if err := registry.Close(); err != nil {
			slog.Error("Failed to close session registry", "error", err)
		}
		if lookup != nil {
			if err := lookup.Close(); err != nil {
				slog.Error("Failed to close lookup index manager", "error", err)
			}
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:     "histscan-mcp",
		Version:  "1.0.0",
		Registry: registry,
		Lookup:   lookup,
	})

	return server, cleanup, nil
}
