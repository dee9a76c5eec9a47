// Package gateway implements the protocol gateway: a tool port speaking
// JSON-RPC to agent peers and an execution port speaking type-discriminated
// messages to the execution pool, routed through injected registries.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/marketgate/pkg/adapters/memory"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// snapshotKey is the store key for the execution pool's latest portfolio.
const snapshotKey = ports.SnapshotKeyExecution

// MarketDataHandler consumes one market_data message from the execution
// pool. At most one handler is active per gateway; register the gateway's
// own BroadcastMarketData to fan events out to tool-port peers.
type MarketDataHandler func(ctx context.Context, msg domain.Message)

// ForwardFunc relays an agent_response payload toward the execution pool.
type ForwardFunc func(params map[string]any)

// Server routes frames between the tool port and the execution port.
// Registries are injected at construction so multiple independent
// gateways can coexist, e.g. in tests.
type Server struct {
	name    string
	version string
	log     *slog.Logger

	toolPeers *peers.Registry
	execPeers *peers.Registry
	tools     *registry.Registry
	store     ports.SnapshotStore
	metrics   *metrics
	upgrader  websocket.Upgrader

	execHandlers map[string]execHandler

	onMarketData MarketDataHandler
	forward      ForwardFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the gateway logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithToolRegistry injects the tool table. The default is empty.
func WithToolRegistry(reg *registry.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.tools = reg
		}
	}
}

// WithToolPeers injects the tool-port connection registry.
func WithToolPeers(r *peers.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.toolPeers = r
		}
	}
}

// WithExecutionPeers injects the execution-pool connection registry.
func WithExecutionPeers(r *peers.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.execPeers = r
		}
	}
}

// WithSnapshotStore injects the portfolio snapshot store. The default is
// the in-memory store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithServerInfo sets the identity reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// New creates a gateway server.
func New(opts ...Option) *Server {
	s := &Server{
		name:    "marketgate",
		version: "dev",
		log:     slog.Default(),
		tools:   registry.NewRegistry(),
		store:   memory.NewStore(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.toolPeers == nil {
		s.toolPeers = peers.NewRegistry("tool", peers.WithLogger(s.log))
	}
	if s.execPeers == nil {
		s.execPeers = peers.NewRegistry("execution", peers.WithLogger(s.log))
	}
	s.metrics = newMetrics(s)
	s.execHandlers = map[string]execHandler{
		domain.MsgMarketData:        s.handleMarketData,
		domain.MsgPortfolioUpdate:   s.handlePortfolioUpdate,
		domain.MsgTradeConfirmation: s.handleTradeConfirmation,
		domain.MsgPing:              s.handlePing,
	}
	return s
}

// SetMarketDataHandler registers the single market-data subscriber,
// replacing any previous one. Wire it before the ports start serving.
// Passing nil drops incoming market data after counting it.
func (s *Server) SetMarketDataHandler(fn MarketDataHandler) {
	s.onMarketData = fn
}

// SetForwarder registers the forwarding capability behind the
// agent_response method, replacing any previous one. Wire it before the
// ports start serving. Without one, relayed decisions are logged and
// dropped, but still acknowledged.
func (s *Server) SetForwarder(fn ForwardFunc) {
	s.forward = fn
}

// Tools exposes the gateway's tool table, e.g. for the stdio adapter.
func (s *Server) Tools() *registry.Registry {
	return s.tools
}

// ToolHandler returns the HTTP surface of the tool port: the WebSocket
// endpoint plus health, metrics and the portfolio snapshot.
func (s *Server) ToolHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleToolWS)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.metrics.httpHandler())
	r.Get("/portfolio", s.handlePortfolio)
	return r
}

// ExecutionHandler returns the HTTP surface of the execution port.
func (s *Server) ExecutionHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleExecWS)
	r.Get("/healthz", s.handleHealthz)
	return r
}

// Close tears down every peer connection on both ports.
func (s *Server) Close() {
	s.toolPeers.CloseAll()
	s.execPeers.CloseAll()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"tools":  s.tools.Len(),
		"peers": map[string]int{
			"tool":      s.toolPeers.Count(),
			"execution": s.execPeers.Count(),
		},
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Load(r.Context(), snapshotKey)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			http.Error(w, "no portfolio snapshot", http.StatusNotFound)
			return
		}
		http.Error(w, "snapshot store unavailable", http.StatusInternalServerError)
		s.log.Error("gateway: portfolio load failed", "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}
