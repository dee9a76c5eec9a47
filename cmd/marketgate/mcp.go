package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/marketgate"
	mcpAdapter "github.com/aretw0/marketgate/pkg/adapters/mcp"
	"github.com/aretw0/marketgate/pkg/client"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) proxy",
	Long: `Starts an MCP server that proxies the running gateway.
This allows AI agents (like Claude Desktop) to call the gateway's trading
tools without speaking its WebSocket dialect. Tool calls are relayed
upstream; the portfolio resource reads the shared snapshot store.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Connect upstream first so the tool list mirrors the gateway.
		cl := client.New(cfg.MCPServerURL,
			client.WithLogger(logger),
			client.WithClientInfo("marketgate-mcp", marketgate.Version),
		)
		if err := cl.Connect(context.Background()); err != nil {
			logger.Error("mcp: cannot reach gateway", "url", cfg.MCPServerURL, "error", err)
			os.Exit(1)
		}
		defer func() { _ = cl.Close() }()

		reg := registry.NewRegistry()
		for _, tool := range cl.Tools() {
			name := tool.Name
			reg.Register(domain.Tool{
				Name:        name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
				Handler: func(ctx context.Context, args map[string]any) (string, error) {
					return cl.CallTool(ctx, name, args)
				},
			})
		}
		logger.Info("mcp: mirrored upstream tools", "count", reg.Len())

		srv := mcpAdapter.NewServer(reg, newSnapshotStore(cfg),
			mcpAdapter.WithLogger(logger),
			mcpAdapter.WithServerInfo("marketgate", marketgate.Version),
		)

		switch transport {
		case "stdio":
			logger.Info("mcp: serving on stdio")
			if err := srv.ServeStdio(); err != nil {
				logger.Error("mcp: server execution failed", "error", err)
				os.Exit(1)
			}
		case "sse":
			logger.Info("mcp: serving over SSE", "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil {
				// Ignore server closed error if it was caused by context cancellation
				if err != http.ErrServerClosed {
					logger.Error("mcp: server execution failed", "error", err)
					os.Exit(1)
				}
			}
			logger.Info("mcp: stopped gracefully")
		default:
			fmt.Printf("Unknown transport: %s. Supported: stdio, sse\n", transport)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
