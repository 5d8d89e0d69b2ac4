package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamw/histscan-mcp/internal/config"
)

// StartSSEServer starts the SSE server
func StartSSEServer(s *mcp.Server, settings *config.Settings) error {
	srv := NewSSEServer(s, settings)

	slog.Info("Server listening (HTTP)", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// NewSSEServer creates a new SSE server
func NewSSEServer(s *mcp.Server, settings *config.Settings) *http.Server {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sse", sseHandler)

	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
