package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/marketgate"
	"github.com/aretw0/marketgate/pkg/bridge"
	"github.com/aretw0/marketgate/pkg/client"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/spf13/cobra"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the compute bridge",
	Long: `Starts the bridge that links the gateway to a pool of compute agents.
The bridge connects upstream to the gateway's tool port, subscribes to
market data, and fans each update out to every connected agent. Agent
responses carrying a tool call are relayed back upstream.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		cl := client.New(cfg.MCPServerURL,
			client.WithLogger(logger),
			client.WithClientInfo("marketgate-bridge", marketgate.Version),
		)
		b := bridge.New(cl, bridge.WithLogger(logger))
		cl.OnNotification(domain.MsgMarketData, b.HandleMarketData)

		if err := cl.Connect(context.Background()); err != nil {
			logger.Error("bridge: cannot reach gateway", "url", cfg.MCPServerURL, "error", err)
			os.Exit(1)
		}
		logger.Info("bridge: connected upstream", "url", cfg.MCPServerURL, "tools", len(cl.Tools()))

		srv := &http.Server{Addr: cfg.BridgeAddr(), Handler: b.Handler()}

		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("bridge: listening for agents", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			logger.Error("bridge: server error", "error", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("bridge: starting shutdown", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("bridge: graceful shutdown did not complete", "error", err)
				if err := srv.Close(); err != nil {
					logger.Error("bridge: error killing server", "error", err)
				}
			}
			b.Close()
			_ = cl.Close()
			logger.Info("bridge: stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}
