// Package client dials a gateway tool port, runs the protocol handshake
// and multiplexes concurrent JSON-RPC calls over the single connection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/marketgate/pkg/correlator"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Handler consumes one server-pushed notification's params. Handlers run
// on the dispatcher goroutine, so they must hand heavy work off.
type Handler func(params json.RawMessage)

// request is the outbound wire shape. Requests carry a generated id;
// notifications omit it.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// frame is the inbound wire shape, covering replies and notifications.
type frame struct {
	ID     json.RawMessage  `json:"id"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params"`
	Result json.RawMessage  `json:"result"`
	Error  *domain.RPCError `json:"error"`
}

// Client is a tool-port peer. One dispatcher goroutine owns all reads;
// calls from any goroutine are correlated back by id.
type Client struct {
	url     string
	name    string
	version string
	log     *slog.Logger

	dialer      *websocket.Dialer
	callTimeout time.Duration
	attempts    uint64
	interval    time.Duration
	multiplier  float64

	pending *correlator.Table

	mu       sync.RWMutex
	conn     *peers.Conn
	ready    bool
	tools    []domain.Tool
	handlers map[string][]Handler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClientInfo sets the identity sent during initialize.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}

// WithCallTimeout caps how long Call waits for a reply. The default is
// 30 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithConnectAttempts sets how many dial attempts Connect makes before
// giving up. The default is 3.
func WithConnectAttempts(n uint64) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithConnectBackoff tunes the delay between dial attempts, growing by
// multiplier each round. The defaults are 2s and 1.5.
func WithConnectBackoff(initial time.Duration, multiplier float64) Option {
	return func(c *Client) {
		if initial > 0 {
			c.interval = initial
		}
		if multiplier > 1 {
			c.multiplier = multiplier
		}
	}
}

// New creates a client for the given ws:// URL. Call Connect to dial.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		name:        "marketgate-client",
		version:     "dev",
		log:         slog.Default(),
		dialer:      websocket.DefaultDialer,
		callTimeout: 30 * time.Second,
		attempts:    3,
		interval:    2 * time.Second,
		multiplier:  1.5,
		pending:     correlator.NewTable(),
		handlers:    map[string][]Handler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotification registers a handler for a server-pushed method. Several
// handlers for one method run in registration order.
func (c *Client) OnNotification(method string, fn Handler) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = append(c.handlers[method], fn)
}

// Ready reports whether the handshake has completed on a live connection.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Tools returns the tool listing captured during the handshake.
func (c *Client) Tools() []domain.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Connect dials the gateway and runs the handshake, retrying with
// exponential backoff. A handshake failure counts as a failed attempt.
func (c *Client) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.interval
	bo.Multiplier = c.multiplier
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		if err := c.connectOnce(ctx); err != nil {
			c.log.Warn("client: connect attempt failed", "url", c.url, "attempt", attempt, "err", err)
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.attempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("connect %s: %w", c.url, err)
	}
	return nil
}

func (c *Client) connectOnce(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	conn := peers.NewConn(ws)
	c.mu.Lock()
	c.conn = conn
	c.ready = false
	c.mu.Unlock()

	go c.dispatch(conn)

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// handshake runs initialize, announces readiness and captures the tool
// listing. Only after all three steps does the client report Ready.
func (c *Client) handshake(ctx context.Context) error {
	_, err := c.Call(ctx, "initialize", map[string]any{
		"protocolVersion": domain.ProtocolVersion,
		"capabilities":    map[string]any{"sampling": map[string]any{}},
		"clientInfo":      map[string]any{"name": c.name, "version": c.version},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := c.Notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	raw, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	var listing struct {
		Tools []domain.Tool `json:"tools"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &listing); err != nil {
			return fmt.Errorf("tools/list decode: %w", err)
		}
	}

	c.mu.Lock()
	c.tools = listing.Tools
	c.ready = true
	c.mu.Unlock()

	c.log.Info("client: connected", "url", c.url, "tools", len(listing.Tools))
	return nil
}

// dispatch owns the read side of one connection. When it exits, every
// pending call fails and the client stops reporting Ready.
func (c *Client) dispatch(conn *peers.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.ready = false
		}
		c.mu.Unlock()
		if n := c.pending.FailAll(domain.ErrConnectionClosed); n > 0 {
			c.log.Warn("client: failed pending calls on disconnect", "count", n)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("client: reader stopped", "err", err)
			return
		}
		c.route(data)
	}
}

func (c *Client) route(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.log.Warn("client: undecodable frame dropped", "err", err)
		return
	}

	// Notifications carry a method and no id.
	if f.Method != "" {
		c.mu.RLock()
		handlers := append([]Handler(nil), c.handlers[f.Method]...)
		c.mu.RUnlock()
		if len(handlers) == 0 {
			c.log.Debug("client: unhandled notification", "method", f.Method)
			return
		}
		for _, h := range handlers {
			h(f.Params)
		}
		return
	}

	if len(f.ID) == 0 || bytes.Equal(f.ID, domain.NullID) {
		c.log.Debug("client: frame without id or method dropped")
		return
	}

	var id string
	if err := json.Unmarshal(f.ID, &id); err != nil {
		id = string(f.ID)
	}

	var resolved bool
	if f.Error != nil {
		resolved = c.pending.Resolve(id, nil, f.Error)
	} else {
		resolved = c.pending.Resolve(id, f.Result, nil)
	}
	if !resolved {
		c.log.Debug("client: late reply discarded", "id", id)
	}
}

// Call sends one request and waits for its reply, the call timeout or
// context cancellation, whichever comes first.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, domain.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	id := correlator.NewID()
	ch := c.pending.Register(id)

	if err := conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		c.pending.Cancel(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		return res.Payload, res.Err
	case <-ctx.Done():
		if c.pending.Cancel(id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", domain.ErrRequestTimeout, method)
			}
			return nil, ctx.Err()
		}
		// The reply won the race against cancellation.
		res := <-ch
		return res.Payload, res.Err
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) error {
	conn := c.currentConn()
	if conn == nil {
		return domain.ErrNotConnected
	}
	return conn.WriteJSON(request{JSONRPC: "2.0", Method: method, Params: params})
}

// CallTool invokes a gateway tool and returns its content. A tool-level
// failure comes back as an error carrying the reported content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := c.Call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return "", err
	}
	var res domain.ToolResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", fmt.Errorf("decode %s result: %w", name, err)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, res.Content)
	}
	return res.Content, nil
}

// Close tears the connection down. Pending calls fail with a connection
// closed error once the dispatcher notices.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.ready = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) currentConn() *peers.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
