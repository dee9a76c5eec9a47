package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/marketgate/internal/config"
	"github.com/aretw0/marketgate/internal/logging"
	"github.com/aretw0/marketgate/pkg/adapters/memory"
	"github.com/aretw0/marketgate/pkg/adapters/redis"
	"github.com/aretw0/marketgate/pkg/persistence/middleware"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marketgate",
	Short: "MarketGate is a WebSocket gateway between trading agents and executors",
	Long: `MarketGate bridges two worlds: AI agents speaking JSON-RPC over WebSocket
on one port, and trade executors speaking typed JSON messages on another.
Market data flows from executors to agents; trade commands flow back.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup loads the layered configuration and installs the process logger.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newSnapshotStore picks the snapshot backend: Redis (with an optional
// read cache) when configured, in-memory otherwise.
func newSnapshotStore(cfg config.Config) ports.SnapshotStore {
	if cfg.RedisAddr == "" {
		return memory.NewStore()
	}
	var store ports.SnapshotStore = redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if cfg.SnapshotCacheTTL > 0 {
		store = middleware.NewCacheMiddleware(cfg.SnapshotCacheTTL)(store)
	}
	return store
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (environment variables win)")
}
