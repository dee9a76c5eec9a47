package marketgate

import (
	"log/slog"

	"github.com/aretw0/marketgate/pkg/gateway"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/aretw0/marketgate/pkg/trading"
)

// Version is the release version of the marketgate module.
var Version = "0.1.0"

type config struct {
	logger *slog.Logger
	store  ports.SnapshotStore
	name   string
	ver    string
}

// Option defines a functional option for configuring the assembled gateway.
type Option func(*config)

// WithLogger sets a custom structured logger for the gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithSnapshotStore injects the portfolio snapshot store, e.g. the Redis
// adapter. The default keeps snapshots in memory.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithServerInfo overrides the identity the gateway reports during the
// initialize handshake.
func WithServerInfo(name, version string) Option {
	return func(c *config) {
		c.name = name
		c.ver = version
	}
}

// New assembles a ready-to-serve gateway: a tool registry loaded with the
// trading tool set, wired so market data arriving on the execution port is
// broadcast to every tool-port peer. The returned server still needs its
// ToolHandler and ExecutionHandler mounted on listeners.
func New(opts ...Option) *gateway.Server {
	cfg := config{
		logger: slog.Default(),
		name:   "marketgate",
		ver:    Version,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := registry.NewRegistry()

	gwOpts := []gateway.Option{
		gateway.WithLogger(cfg.logger),
		gateway.WithToolRegistry(reg),
		gateway.WithServerInfo(cfg.name, cfg.ver),
	}
	if cfg.store != nil {
		gwOpts = append(gwOpts, gateway.WithSnapshotStore(cfg.store))
	}

	srv := gateway.New(gwOpts...)

	tools := trading.NewToolSet(srv, trading.WithLogger(cfg.logger))
	tools.RegisterAll(reg)

	srv.SetMarketDataHandler(srv.BroadcastMarketData)

	return srv
}
