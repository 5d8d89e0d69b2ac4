package mcp

import (
	"testing"
	"time"

	"github.com/noamw/histscan-mcp/internal/commitindex"
	"github.com/noamw/histscan-mcp/internal/engine"
	"github.com/noamw/histscan-mcp/internal/gitio"
)

func newTestRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	registry := engine.NewRegistry(engine.RegistryConfig{
		NewReader: func(string) gitio.RepositoryReader { return &gitio.FakeReader{} },
	})
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func TestCreateServer(t *testing.T) {
	cfg := ServerConfig{
		Name:     "test-server",
		Version:  "1.0.0",
		Registry: newTestRegistry(t),
	}

	server := CreateServer(cfg)
	if server == nil {
		t.Fatal("Expected server to be created")
	}
}

func TestCreateServer_EmptyConfig(t *testing.T) {
	cfg := ServerConfig{}

	server := CreateServer(cfg)
	if server == nil {
		t.Fatal("Expected server to be created even with empty config")
	}
}

func TestCreateServer_WithLookup(t *testing.T) {
	manager := commitindex.NewManager(func(string) gitio.RepositoryReader {
		return &gitio.FakeReader{}
	}, time.Minute)
	t.Cleanup(func() { _ = manager.Close() })

	cfg := ServerConfig{
		Name:     "histscan-mcp",
		Version:  "1.0.0",
		Registry: newTestRegistry(t),
		Lookup:   manager,
	}

	server := CreateServer(cfg)
	if server == nil {
		t.Fatal("Expected server to be created with lookup manager")
	}

	// The MCP SDK doesn't expose a way to list registered tools;
	// integration tests verify them via the MCP protocol.
}
