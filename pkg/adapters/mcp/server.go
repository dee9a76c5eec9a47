// Package mcp exposes the gateway's tool table over the Model Context
// Protocol, for editor and desktop clients that speak stdio or SSE
// instead of the WebSocket tool port.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PortfolioURI is the resource address of the latest portfolio snapshot.
const PortfolioURI = "marketgate://portfolio"

// Server republishes a tool registry as an MCP server.
type Server struct {
	name    string
	version string
	log     *slog.Logger

	tools     *registry.Registry
	store     ports.SnapshotStore
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the adapter logger. Logs go to stderr so stdout stays
// clean for the stdio transport.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServerInfo sets the identity reported to MCP clients.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// NewServer wraps the tool registry and snapshot store. Tools present in
// the registry at construction time become MCP tools; the portfolio
// snapshot is published as a readable resource.
func NewServer(tools *registry.Registry, store ports.SnapshotStore, opts ...Option) *Server {
	s := &Server{
		name:    "marketgate-mcp",
		version: "dev",
		log:     slog.Default(),
		tools:   tools,
		store:   store,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer(s.name, s.version)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("mcp: listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerTools mirrors every registry tool, schema and all, onto the
// MCP surface. Invocations run through the same Execute path as the
// WebSocket tool port, so error semantics match.
func (s *Server) registerTools() {
	for _, tool := range s.tools.List() {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil || len(tool.InputSchema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}

		name := tool.Name
		s.mcpServer.AddTool(
			mcp.NewToolWithRawSchema(name, tool.Description, schema),
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				content, err := s.tools.Execute(ctx, name, request.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(content), nil
			},
		)
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PortfolioURI, "Latest Portfolio Snapshot",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := s.store.Load(ctx, ports.SnapshotKeyExecution)
		if err != nil {
			if errors.Is(err, domain.ErrSnapshotNotFound) {
				return nil, fmt.Errorf("no portfolio snapshot reported yet")
			}
			return nil, fmt.Errorf("load portfolio snapshot: %w", err)
		}

		jsonBytes, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode portfolio snapshot: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PortfolioURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
