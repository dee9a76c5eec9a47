// Package bridge relays gateway market data to downstream compute peers
// and turns their trade decisions back into gateway tool calls.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aretw0/marketgate/pkg/correlator"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Upstream is the slice of the gateway client the bridge needs: issuing
// tool calls and reporting connection state.
type Upstream interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Ready() bool
}

// envelope is the request frame fanned out to compute peers. Every relay
// carries a fresh correlation id.
type envelope struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// reply is the inbound frame from a compute peer. Only agent_response is
// recognized; everything else is logged and dropped.
type reply struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// decision is the recognized result payload. A missing tool_call means
// the peer chose not to act.
type decision struct {
	Response string           `json:"response"`
	ToolCall *domain.ToolCall `json:"tool_call"`
}

// MethodProcessMarketData is the envelope method compute peers dispatch on.
const MethodProcessMarketData = "process_market_data"

// Bridge owns the compute-peer registry and the relay loops.
type Bridge struct {
	log      *slog.Logger
	upstream Upstream
	peers    *peers.Registry
	upgrader websocket.Upgrader
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// WithPeers injects the compute-peer registry.
func WithPeers(r *peers.Registry) Option {
	return func(b *Bridge) {
		if r != nil {
			b.peers = r
		}
	}
}

// New creates a bridge issuing tool calls through upstream.
func New(upstream Upstream, opts ...Option) *Bridge {
	b := &Bridge{
		log:      slog.Default(),
		upstream: upstream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.peers == nil {
		b.peers = peers.NewRegistry("compute", peers.WithLogger(b.log))
	}
	return b
}

// Handler returns the HTTP surface compute peers connect to.
func (b *Bridge) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", b.handleWS)
	r.Get("/healthz", b.handleHealthz)
	return r
}

// Peers reports the number of connected compute peers.
func (b *Bridge) Peers() int {
	return b.peers.Count()
}

// Close tears down every compute peer connection.
func (b *Bridge) Close() {
	b.peers.CloseAll()
}

// HandleMarketData is the gateway-notification callback. It wraps the
// payload in a fresh-id request envelope and fans it out to every
// compute peer.
func (b *Bridge) HandleMarketData(params json.RawMessage) {
	var payload map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &payload); err != nil {
			b.log.Warn("bridge: undecodable market data dropped", "err", err)
			return
		}
	}

	env := envelope{
		JSONRPC: "2.0",
		ID:      correlator.NewID(),
		Method:  MethodProcessMarketData,
		Params:  payload,
	}
	sent, failed := b.peers.Broadcast(env)
	b.log.Debug("bridge: market data relayed", "id", env.ID, "sent", sent, "failed", failed)
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("bridge: upgrade failed", "err", err)
		return
	}

	conn := peers.NewConn(ws)
	b.peers.Add(conn)
	defer func() {
		b.peers.Remove(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.log.Debug("bridge: peer read loop ended", "peer", conn.Label(), "err", err)
			return
		}
		b.consume(r.Context(), conn, data)
	}
}

// consume processes one compute-peer frame. Failures are logged, never
// raised back to the peer.
func (b *Bridge) consume(ctx context.Context, conn *peers.Conn, data []byte) {
	var rep reply
	if err := json.Unmarshal(data, &rep); err != nil {
		b.log.Warn("bridge: undecodable peer frame dropped", "peer", conn.Label(), "err", err)
		return
	}
	if rep.Type != "agent_response" {
		b.log.Debug("bridge: unrecognized peer frame dropped", "peer", conn.Label(), "type", rep.Type)
		return
	}

	var dec decision
	if len(rep.Result) > 0 {
		if err := json.Unmarshal(rep.Result, &dec); err != nil {
			b.log.Warn("bridge: undecodable agent response", "peer", conn.Label(), "id", rep.ID, "err", err)
			return
		}
	}

	if dec.ToolCall == nil || dec.ToolCall.Name == "" {
		b.log.Info("bridge: agent response without tool call", "peer", conn.Label(), "id", rep.ID, "response", dec.Response)
		return
	}

	content, err := b.upstream.CallTool(ctx, dec.ToolCall.Name, dec.ToolCall.Arguments)
	if err != nil {
		b.log.Error("bridge: upstream tool call failed", "tool", dec.ToolCall.Name, "id", rep.ID, "err", err)
		return
	}
	b.log.Info("bridge: tool call relayed", "tool", dec.ToolCall.Name, "id", rep.ID, "result", content)
}

func (b *Bridge) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"peers":          b.peers.Count(),
		"upstream_ready": b.upstream.Ready(),
	})
}
