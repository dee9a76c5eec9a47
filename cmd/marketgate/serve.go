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
	"github.com/aretw0/marketgate/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway listeners",
	Long: `Starts both gateway listeners: the tool port, where agents speak JSON-RPC
over WebSocket, and the execution port, where executors push market data
and receive trade commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		opts := []marketgate.Option{marketgate.WithLogger(logger)}
		if cfg.RedisAddr != "" {
			opts = append(opts, marketgate.WithSnapshotStore(newSnapshotStore(cfg)))
			logger.Info("gateway: using redis snapshot store", "addr", cfg.RedisAddr)
		}
		gw := marketgate.New(opts...)

		if headless, _ := cmd.Flags().GetBool("headless"); !headless {
			tui.PrintBanner(marketgate.Version)
		}

		toolSrv := &http.Server{Addr: cfg.ToolAddr(), Handler: gw.ToolHandler()}
		execSrv := &http.Server{Addr: cfg.ExecAddr(), Handler: gw.ExecutionHandler()}

		// Channel to listen for errors coming from either listener.
		serverErrors := make(chan error, 2)

		go func() {
			logger.Info("gateway: tool port listening", "addr", toolSrv.Addr)
			serverErrors <- toolSrv.ListenAndServe()
		}()
		go func() {
			logger.Info("gateway: execution port listening", "addr", execSrv.Addr)
			serverErrors <- execSrv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			logger.Error("gateway: server error", "error", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("gateway: starting shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			for _, srv := range []*http.Server{toolSrv, execSrv} {
				if err := srv.Shutdown(ctx); err != nil {
					logger.Warn("gateway: graceful shutdown did not complete", "error", err)
					if err := srv.Close(); err != nil {
						logger.Error("gateway: error killing server", "error", err)
					}
				}
			}
			gw.Close()
			logger.Info("gateway: stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("headless", false, "Suppress the startup banner")
}
